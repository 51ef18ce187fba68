// Package syscalls is the syscall layer (§6): it decodes a trap frame
// already parked at the syscall ABI and performs Exit, Yield, AllocPages,
// FreePages, Open, Read, Write and Close, writing the result back into
// the frame via SetReturn. Grounded on original_source's syscall.rs.
package syscalls

import (
	"sync"

	"rvkernel/internal/bitfield"
	"rvkernel/internal/ctxswitch"
	"rvkernel/internal/future"
	"rvkernel/internal/handle"
	"rvkernel/internal/kerr"
	"rvkernel/internal/klog"
	"rvkernel/internal/process"
	"rvkernel/internal/sv39"
	"rvkernel/internal/trapframe"
)

// Syscall numbers (§6).
const (
	numExit       = 1
	numYield      = 2
	numAllocPages = 3
	numFreePages  = 4
	numOpen       = 0x10
	numRead       = 0x11
	numWrite      = 0x12
	numClose      = 0x13
)

// allOnes is the sentinel AllocPages uses for "pick a physical/virtual
// address for me" in place of an explicit one (original_source uses
// u64::MAX for the same purpose).
const allOnes = ^uint64(0)

// userRegionStart/userRegionEnd bound AllocPages' free-virtual-address
// search (§6): addresses below the kernel image base, which a process's
// own root table never maps below userRegionStart.
const (
	userRegionStart = 0x1000
	userRegionEnd   = 0x80000000
)

// HostBuffers resolves a syscall's register-encoded "buf" argument to an
// actual Go byte slice (§9 Design Notes). qemuriscv mode dereferences a1
// as a raw pointer into the calling process's mapped memory; sim mode has
// no address space to dereference, so a buffer is registered ahead of
// time and the syscall argument carries its registry handle instead.
type HostBuffers struct {
	mu   sync.Mutex
	next uint64
	bufs map[uint64][]byte
}

// NewHostBuffers returns an empty buffer registry.
func NewHostBuffers() *HostBuffers {
	return &HostBuffers{next: 1, bufs: make(map[uint64][]byte)}
}

// Register hands back a handle for buf, to be passed as a syscall's buf
// argument in place of a raw address.
func (h *HostBuffers) Register(buf []byte) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	h.bufs[id] = buf
	return id
}

// Get resolves a previously registered handle.
func (h *HostBuffers) Get(id uint64) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.bufs[id]
	return b, ok
}

// Forget drops a handle once it's no longer needed.
func (h *HostBuffers) Forget(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.bufs, id)
}

// physAllocator hands out zeroed, byte-addressable physical pages for
// AllocPages requests that don't name an explicit physical address
// (§6's paddr == allOnes case), distinct from the Sv39 arena's
// page-table-frame pool and from the ProcessEgg backend's own allocator.
type physAllocator struct {
	mu    sync.Mutex
	next  uint64
	pages map[uint64][]byte
}

func newPhysAllocator(base uint64) *physAllocator {
	return &physAllocator{next: base, pages: make(map[uint64][]byte)}
}

func (a *physAllocator) alloc(size uint64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	phys := a.next
	a.next += size
	a.pages[phys] = make([]byte, size)
	return phys
}

// pendingOp is one asynchronous syscall suspended at a Future's Pending
// result (§4.5 steps 2/4): the future itself, the waker handed to it (so
// a later Poll reuses the same identity the backend may have stashed),
// a snapshot of the address-space root the call was made from, and the
// finish callback that knows how to write this particular syscall's
// result back into its frame.
type pendingOp struct {
	future future.Future
	waker  *future.Waker
	root   *sv39.PageTable
	frame  *trapframe.TrapFrame
	finish func(value any, err error)
}

// Handler implements trap.SyscallHandler (§6).
type Handler struct {
	table      *process.Table
	switcher   *ctxswitch.Switcher
	registry   *handle.Registry
	buffers    *HostBuffers
	phys       *physAllocator
	kernelSatp trapframe.SatpValue
	log        *klog.Logger

	mu      sync.Mutex
	pending map[uint64]*pendingOp
}

// New returns a Handler. physBase seeds the synthetic physical address
// space AllocPages hands out fresh pages from.
func New(table *process.Table, switcher *ctxswitch.Switcher, registry *handle.Registry, buffers *HostBuffers, physBase uint64, kernelSatp trapframe.SatpValue) *Handler {
	return &Handler{
		table:      table,
		switcher:   switcher,
		registry:   registry,
		buffers:    buffers,
		phys:       newPhysAllocator(physBase),
		kernelSatp: kernelSatp,
		log:        klog.For("syscalls"),
		pending:    make(map[uint64]*pendingOp),
	}
}

// Handle dispatches frame by its a7 syscall number (§6).
func (h *Handler) Handle(frame *trapframe.TrapFrame) {
	proc, ok := h.table.Get(frame.Pid)
	if !ok {
		h.log.WithPid(frame.Pid).Warnf("syscall from unknown pid, dropping")
		return
	}

	switch frame.SyscallNumber() {
	case numExit:
		h.exit(proc, frame)
	case numYield:
		h.yield(proc, frame)
	case numAllocPages:
		h.allocPages(proc, frame)
	case numFreePages:
		frame.SetReturn(0, 0, 0)
	case numOpen:
		h.open(proc, frame)
	case numRead:
		h.read(proc, frame)
	case numWrite:
		h.write(proc, frame)
	case numClose:
		h.close(proc, frame)
	default:
		h.log.WithPid(frame.Pid).Warnf("unknown syscall number %d", frame.SyscallNumber())
	}
}

// exit implements Exit (§6): delete the calling process and reschedule.
// There is deliberately no return: the process's frame is gone by the
// time SetReturn would run.
func (h *Handler) exit(proc *process.Process, frame *trapframe.TrapFrame) {
	h.CancelPending(frame.Pid)
	process.Delete(h.table, frame.Pid)
	if err := h.switcher.ScheduleAndSwitch(h.kernelSatp); err != nil {
		h.log.Fatal(err.Error())
	}
}

// yield implements Yield (§6): voluntarily give up the rest of this
// process's slice unless a wake credit from an earlier
// MakePendingWhenPossible makes the yield a no-op.
func (h *Handler) yield(proc *process.Process, frame *trapframe.TrapFrame) {
	if proc.YieldMaybe() {
		if err := h.switcher.ScheduleAndSwitch(h.kernelSatp); err != nil {
			h.log.Fatal(err.Error())
		}
	}
	frame.SetReturn(0, 0, 0)
}

// allocPages implements AllocPages (§6). It operates on the calling
// process's own RootTable directly rather than through the live SATP
// register: sim mode has no hardware walker, so "the process's address
// space" just is that Go object.
func (h *Handler) allocPages(proc *process.Process, frame *trapframe.TrapFrame) {
	vaddr := frame.Arg(0)
	paddr := frame.Arg(1)
	size := frame.Arg(2)
	flagsWord := frame.Arg(3)

	var physAddr uint64
	if paddr == allOnes {
		physAddr = h.phys.alloc(roundUpPage(size))
	} else {
		if proc.UserID != 0 {
			frame.SetReturn(allOnes, uint64(kerr.KindUnimplemented), 0)
			return
		}
		physAddr = paddr
	}

	sizeAligned := roundUpPage(size)

	virtAddr := vaddr
	if vaddr == allOnes {
		found, ok := h.findFreeRegion(proc.RootTable, sizeAligned)
		if !ok {
			h.log.Fatal("AllocPages: no free virtual region found")
			return
		}
		virtAddr = found
	}

	var flags sv39.Flags
	_ = bitfield.Unpack(&flags, flagsWord)
	flags.V = true
	flags.U = true

	if err := proc.RootTable.Map(physAddr, virtAddr, sizeAligned, flags); err != nil {
		a1, a2 := err.Encode()
		frame.SetReturn(allOnes, a1, a2)
		return
	}
	frame.SetReturn(virtAddr, 0, 0)
}

// findFreeRegion scans [userRegionStart, userRegionEnd) for a
// page-aligned run of at least size bytes not already occupied by a
// user-flagged mapping (§6: only USER-flagged leaves count as "used";
// this matches original_source's AllocPages search, which only resets
// its run on a page carrying the USER bit).
func (h *Handler) findFreeRegion(table *sv39.PageTable, size uint64) (uint64, bool) {
	runLength := uint64(0)
	for addr := uint64(userRegionStart); addr < userRegionEnd; addr += sv39.PageSize {
		if t, ok := table.Query(addr); ok && t.Flags.U {
			runLength = 0
			continue
		}
		if runLength >= size {
			return addr - runLength, true
		}
		runLength += sv39.PageSize
	}
	return 0, false
}

func roundUpPage(size uint64) uint64 {
	return (size + sv39.PageSize - 1) &^ (sv39.PageSize - 1)
}

// open implements Open (§6): allocate the next fd, open the named
// backend through it, and record the handle on success.
func (h *Handler) open(proc *process.Process, frame *trapframe.TrapFrame) {
	backendID := frame.Arg(0)
	options := argsFrom(frame, 1)

	fd, err := proc.Handles.Open(h.registry, backendID, options)
	if err != nil {
		a1, a2 := err.Encode()
		frame.SetReturn(allOnes, a1, a2)
		return
	}
	frame.SetReturn(fd, 0, 0)
}

// read implements Read (§6): resolve the host buffer behind Arg(1), call
// the fd's backend, and drive the resulting Future through the executor
// (§4.5).
func (h *Handler) read(proc *process.Process, frame *trapframe.TrapFrame) {
	fd := frame.Arg(0)
	bufID := frame.Arg(1)
	length := frame.Arg(2)
	options := argsFrom(frame, 3)

	buf, ok := h.buffers.Get(bufID)
	if !ok {
		frame.SetReturn(allOnes, uint64(kerr.KindInvalidInput), 0)
		return
	}
	if uint64(len(buf)) > length {
		buf = buf[:length]
	}

	f, err := proc.Handles.Read(fd, buf, options)
	if err != nil {
		a1, a2 := err.Encode()
		frame.SetReturn(allOnes, a1, a2)
		return
	}

	h.runAsync(proc, frame, f, finishWithValue(frame))
}

// write implements Write (§6), the mirror of read.
func (h *Handler) write(proc *process.Process, frame *trapframe.TrapFrame) {
	fd := frame.Arg(0)
	bufID := frame.Arg(1)
	length := frame.Arg(2)
	options := argsFrom(frame, 3)

	buf, ok := h.buffers.Get(bufID)
	if !ok {
		frame.SetReturn(allOnes, uint64(kerr.KindInvalidInput), 0)
		return
	}
	if uint64(len(buf)) > length {
		buf = buf[:length]
	}

	f, err := proc.Handles.Write(fd, buf, options)
	if err != nil {
		a1, a2 := err.Encode()
		frame.SetReturn(allOnes, a1, a2)
		return
	}

	h.runAsync(proc, frame, f, finishWithValue(frame))
}

// finishWithValue returns a pendingOp.finish callback that writes a
// successful Future result (an int/uint64 byte count) or its encoded
// error back into frame, the shape Read and Write both need.
func finishWithValue(frame *trapframe.TrapFrame) func(value any, err error) {
	return func(value any, err error) {
		if err != nil {
			if kerrErr, ok := err.(*kerr.Error); ok {
				a1, a2 := kerrErr.Encode()
				frame.SetReturn(allOnes, a1, a2)
				return
			}
			frame.SetReturn(allOnes, uint64(kerr.KindFatal), 0)
			return
		}
		frame.SetReturn(toUint64(value), 0, 0)
	}
}

// close implements Close (§6): synchronous, no future involved.
func (h *Handler) close(proc *process.Process, frame *trapframe.TrapFrame) {
	fd := frame.Arg(0)
	options := argsFrom(frame, 1)
	if err := proc.Handles.Close(fd, options); err != nil {
		a1, a2 := err.Encode()
		frame.SetReturn(allOnes, a1, a2)
		return
	}
	frame.SetReturn(0, 0, 0)
}

// runAsync is the trap-future executor (§4.5): it marks the caller
// Yielded, builds a waker bound to this call, and polls the future once.
// Ready flows straight into finish, as if control fell through to the
// user-space return the future body itself would trigger. Pending
// retains the call keyed by pid and switches the scheduler to the next
// runnable process instead of blocking the hart.
func (h *Handler) runAsync(proc *process.Process, frame *trapframe.TrapFrame, f future.Future, finish func(value any, err error)) {
	pid := frame.Pid
	proc.SetState(process.Yielded)

	waker := future.NewWaker(pid, h.resume)
	op := &pendingOp{future: f, waker: waker, root: proc.RootTable, frame: frame, finish: finish}

	poll, value, err := f.Poll(waker)
	if poll == future.Ready {
		proc.SetState(process.Running)
		finish(value, err)
		return
	}

	h.mu.Lock()
	h.pending[pid] = op
	h.mu.Unlock()

	if err := h.switcher.ScheduleAndSwitch(h.kernelSatp); err != nil {
		h.log.Fatal(err.Error())
	}
}

// resume is invoked as a pendingOp's Waker fires (§4.5 step 5): look the
// call back up, re-poll it, and on completion write its result and mark
// the owning process Pending again so the scheduler picks it back up. A
// pid with no registered call is a stale or already-cancelled wake and
// is silently ignored, matching Waker.Wake's documented no-op contract.
func (h *Handler) resume(pid uint64) {
	h.mu.Lock()
	op, ok := h.pending[pid]
	h.mu.Unlock()
	if !ok {
		return
	}

	proc, alive := h.table.Get(pid)
	if !alive {
		h.CancelPending(pid)
		h.log.WithPid(pid).Warnf("%v", kerr.New("syscalls", kerr.KindCancelled, "process deleted while a future was pending"))
		return
	}

	poll, value, err := op.future.Poll(op.waker)
	if poll == future.Pending {
		return
	}

	h.mu.Lock()
	delete(h.pending, pid)
	h.mu.Unlock()

	op.finish(value, err)
	proc.SetState(process.Pending)
}

// CancelPending drops pid's in-flight future, waker and finish callback
// without ever invoking them (§4.5 Cancellation: "a process deletion
// drops the waker, the future, and any buffers it owns"). Called from
// every path that deletes a process, so no completion can outlive it.
func (h *Handler) CancelPending(pid uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, pid)
}

// argsFrom collects the syscall's remaining argument words starting at
// index i through a6, as the options slice a backend's Read/Write/Open
// receives (§6).
func argsFrom(frame *trapframe.TrapFrame, i int) []uint64 {
	opts := make([]uint64, 0, 7-i)
	for ; i <= 6; i++ {
		opts = append(opts, frame.Arg(i))
	}
	return opts
}

func toUint64(v any) uint64 {
	switch n := v.(type) {
	case int:
		return uint64(n)
	case uint64:
		return n
	default:
		return 0
	}
}
