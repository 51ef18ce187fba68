package handle

import (
	"encoding/binary"
	"fmt"
	"sync"

	"rvkernel/internal/future"
	"rvkernel/internal/kerr"
	"rvkernel/internal/sv39"
	"rvkernel/internal/trapframe"
)

// Egg packet discriminants (§6 ProcessEgg write packet format).
const (
	eggPacketEntry  = 0x01
	eggPacketMemory = 0x02
	eggPacketName   = 0x03
	eggPacketHatch  = 0x04
)

// kernelImageEnd bounds the Memory-packet assertion (§4.9): no mapping
// in this path may target virtual page addresses at or above the kernel
// image base.
const kernelImageEnd = 0x80000000

// SpawnFunc creates a new process whose root-table register is satp and
// whose entry PC is entryPC, returning its pid. It's injected rather
// than imported directly so this package doesn't need to depend on
// internal/process (which itself depends on internal/handle for a
// process's handle table).
type SpawnFunc func(name string, satp trapframe.SatpValue, entryPC uint64) uint64

// dataPageAllocator hands out zeroed, byte-addressable physical pages
// for an egg's loaded memory, distinct from the Sv39 arena's
// page-table-frame pool (§4.9). Sim mode has no real physical memory to
// carve these from, so each page is a plain Go byte slice keyed by a
// synthetic physical address.
type dataPageAllocator struct {
	mu    sync.Mutex
	next  uint64
	pages map[uint64][]byte
}

func newDataPageAllocator(base uint64) *dataPageAllocator {
	return &dataPageAllocator{next: base, pages: make(map[uint64][]byte)}
}

func (a *dataPageAllocator) alloc() (phys uint64, page []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	phys = a.next
	a.next += sv39.PageSize
	page = make([]byte, sv39.PageSize)
	a.pages[phys] = page
	return phys, page
}

func (a *dataPageAllocator) page(phys uint64) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pages[phys]
}

type egg struct {
	mu         sync.Mutex
	table      *sv39.PageTable
	name       string
	entryPoint uint64
}

// ProcessEggBackend stages construction of a new process: open allocates
// an empty egg with a fresh root table and the kernel range identity
// mapped; write consumes a packet stream building up its memory image,
// entry point and name; Hatch spawns the process (§4.8).
type ProcessEggBackend struct {
	Unimplemented

	arena    *sv39.FrameArena
	data     *dataPageAllocator
	spawn    SpawnFunc
	identLen uint64

	mu   sync.Mutex
	eggs map[uint64]*egg
}

// NewProcessEggBackend constructs the ProcessEgg singleton. arena backs
// every egg's page-table frames; dataBase seeds the synthetic physical
// address space for loaded memory pages; identLen is the length of the
// kernel range (starting at 0x80000000) identity-mapped into every new
// egg, matching original_source's 1 GiB kernel identity map.
func NewProcessEggBackend(arena *sv39.FrameArena, dataBase uint64, identLen uint64, spawn SpawnFunc) Backend {
	return &ProcessEggBackend{
		arena:    arena,
		data:     newDataPageAllocator(dataBase),
		spawn:    spawn,
		identLen: identLen,
		eggs:     make(map[uint64]*egg),
	}
}

func (b *ProcessEggBackend) Name() string { return "ProcessEggBackend" }

func (b *ProcessEggBackend) Open(fdID uint64, _ []uint64) (any, *kerr.Error) {
	table := sv39.New(b.arena)
	if err := table.Map(kernelImageEnd, kernelImageEnd, b.identLen, sv39.Flags{V: true, R: true, W: true, X: true}); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.eggs[fdID] = &egg{table: table}
	b.mu.Unlock()
	return nil, nil
}

// Write consumes one packet from buf (§6). Memory and Name packets
// consume the rest of buf as payload; Entry and Hatch are fixed-size.
func (b *ProcessEggBackend) Write(fdID uint64, buf []byte, _ []uint64) (future.Future, *kerr.Error) {
	b.mu.Lock()
	e, ok := b.eggs[fdID]
	b.mu.Unlock()
	if !ok {
		return nil, kerr.New("handle.process_egg", kerr.KindNotFound, "egg fd not open")
	}
	if len(buf) < 1 {
		return nil, kerr.New("handle.process_egg", kerr.KindInvalidInput, "empty packet")
	}

	switch buf[0] {
	case eggPacketEntry:
		if len(buf) < 9 {
			return nil, kerr.New("handle.process_egg", kerr.KindInvalidInput, "short Entry packet")
		}
		e.mu.Lock()
		e.entryPoint = binary.LittleEndian.Uint64(buf[1:9])
		e.mu.Unlock()

	case eggPacketMemory:
		if len(buf) < 9 {
			return nil, kerr.New("handle.process_egg", kerr.KindInvalidInput, "short Memory packet")
		}
		virt := binary.LittleEndian.Uint64(buf[1:9])
		data := buf[9:]
		if err := b.loadMemory(e, virt, data); err != nil {
			return nil, err
		}

	case eggPacketName:
		e.mu.Lock()
		e.name = string(buf[1:])
		e.mu.Unlock()

	case eggPacketHatch:
		b.mu.Lock()
		delete(b.eggs, fdID)
		b.mu.Unlock()

		e.mu.Lock()
		name, entryPoint, satp := e.name, e.entryPoint, trapframe.NewSatp(e.table.RootPhysAddr())
		e.mu.Unlock()

		pid := b.spawn(name, satp, entryPoint)
		return future.Done(pid, nil), nil

	default:
		return nil, kerr.New("handle.process_egg", kerr.KindInvalidInput, fmt.Sprintf("unknown packet kind 0x%02x", buf[0]))
	}

	return future.Done(len(buf), nil), nil
}

// loadMemory implements the Process Egg Memory Loader (§4.9): fill every
// 4 KiB page overlapping [virt, virt+len(data)), allocating and mapping
// pages that aren't already present, copying data at the right offset
// into each.
func (b *ProcessEggBackend) loadMemory(e *egg, virt uint64, data []byte) *kerr.Error {
	pageOffset := virt % sv39.PageSize
	base := virt - pageOffset

	e.mu.Lock()
	defer e.mu.Unlock()

	for p := base; p < base+uint64(len(data))+pageOffset; p += sv39.PageSize {
		page, err := b.pageFor(e, p)
		if err != nil {
			return err
		}

		// Offset of this page's first byte within data, and within data
		// the slice of data landing in this page.
		pageStartInData := int64(p) - int64(virt)
		dstStart := 0
		if pageStartInData < 0 {
			dstStart = int(-pageStartInData)
		}
		srcStart := int64(p) + int64(dstStart) - int64(virt)
		if srcStart < 0 || srcStart > int64(len(data)) {
			continue
		}
		n := sv39.PageSize - dstStart
		if remaining := len(data) - int(srcStart); n > remaining {
			n = remaining
		}
		if n > 0 {
			copy(page[dstStart:dstStart+n], data[srcStart:srcStart+int64(n)])
		}
	}
	return nil
}

func (b *ProcessEggBackend) pageFor(e *egg, pageAddr uint64) ([]byte, *kerr.Error) {
	if t, ok := e.table.Query(pageAddr); ok {
		if page := b.data.page(t.PhysAddr); page != nil {
			return page, nil
		}
	}

	if pageAddr >= kernelImageEnd {
		return nil, kerr.New("handle.process_egg", kerr.KindInvalidInput, "memory packet targets kernel image range").WithData(pageAddr, 0)
	}

	phys, page := b.data.alloc()
	if err := e.table.Map(phys, pageAddr, sv39.PageSize, sv39.Flags{V: true, R: true, W: true, X: true, U: true}); err != nil {
		return nil, err
	}
	return page, nil
}

var _ Backend = (*ProcessEggBackend)(nil)
