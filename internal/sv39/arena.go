package sv39

import (
	"sync"

	"rvkernel/internal/kerr"
)

// FrameIndex identifies a page-table frame inside a FrameArena. It is the
// Go-side stand-in for a physical frame number when the frame holds a
// page table rather than process memory.
type FrameIndex uint32

// FrameArena owns the backing storage for every page-table frame in the
// kernel: a growable set of 512-entry frames, each addressable both by its
// FrameIndex (for Go-side access) and by a notional physical address (for
// PTE encoding and for the SATP/root-table register). Modeling frames as
// indices rather than pointers means the Map/Query boundary is the only
// place physical addresses and Go values need to be translated into one
// another, matching §9's Design Notes.
type FrameArena struct {
	mu        sync.Mutex
	frames    []*[EntryCount]PTE
	physOf    []uint64
	indexOf   map[uint64]FrameIndex
	nextPhys  uint64
}

// NewFrameArena creates an arena that hands out notional physical
// addresses starting at physBase (must be page-aligned).
func NewFrameArena(physBase uint64) *FrameArena {
	return &FrameArena{
		indexOf:  make(map[uint64]FrameIndex),
		nextPhys: physBase,
	}
}

// Alloc reserves a fresh, zeroed frame and returns its index.
func (a *FrameArena) Alloc() FrameIndex {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := FrameIndex(len(a.frames))
	a.frames = append(a.frames, new([EntryCount]PTE))
	phys := a.nextPhys
	a.nextPhys += PageSize
	a.physOf = append(a.physOf, phys)
	a.indexOf[phys] = idx
	return idx
}

// Frame returns a pointer to the raw entry array for idx.
func (a *FrameArena) Frame(idx FrameIndex) *[EntryCount]PTE {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames[idx]
}

// PhysAddr returns the notional physical address backing idx.
func (a *FrameArena) PhysAddr(idx FrameIndex) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.physOf[idx]
}

// IndexForPhys resolves a physical address previously returned by
// PhysAddr back to its FrameIndex. Used when descending into a PTE that
// already points at a child table: the PTE only stores a physical page
// number, so the arena is consulted to recover the Go-side index.
func (a *FrameArena) IndexForPhys(phys uint64) (FrameIndex, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx, ok := a.indexOf[phys]
	return idx, ok
}

// errNotAnArenaFrame builds the error returned when a PTE's physical page number does
// not correspond to any frame this arena allocated (page-table
// corruption, §7 KindFatal).
func errNotAnArenaFrame(phys uint64) *kerr.Error {
	return kerr.New("sv39", kerr.KindFatal, "physical address is not a known page-table frame").WithData(phys, 0)
}
