// Package vbuf is the virtual-buffer registry: a process-wide, all-harts-
// shared map from a (physBase, length) MMIO or device-memory window to a
// refcounted VirtualBuffer, mapped into the kernel's address range on
// first request and left mapped when the last reference is released (§4.10).
// Grounded on original_source's virtual_buffers.rs, which plays the same
// collaborator role for the timeout/device-interrupt paths.
package vbuf

import (
	"sync"

	"rvkernel/internal/kerr"
	"rvkernel/internal/sv39"
)

// VirtualBuffer is a mapped window over a physical address range.
type VirtualBuffer struct {
	PhysBase uint64
	Length   uint64
	VirtBase uint64

	refs uint64
}

// PhysEnd returns PhysBase+Length.
func (v *VirtualBuffer) PhysEnd() uint64 { return v.PhysBase + v.Length }

type key struct {
	physBase uint64
	length   uint64
}

// Registry maps physical windows to their mapped VirtualBuffer, bumping a
// refcount on repeat requests for the same window instead of remapping.
type Registry struct {
	mu      sync.Mutex
	table   *sv39.PageTable
	entries map[key]*VirtualBuffer
	nextVA  uint64
}

// New returns a Registry that maps windows into table starting at
// virtBase (the kernel's reserved device-window range).
func New(table *sv39.PageTable, virtBase uint64) *Registry {
	return &Registry{
		table:   table,
		entries: make(map[key]*VirtualBuffer),
		nextVA:  virtBase,
	}
}

// Get returns the VirtualBuffer mapping [physBase, physBase+length), the
// same virtual window, and a bumped refcount. It maps the window into
// the kernel's address range on first use.
func (r *Registry) Get(physBase, length uint64) (*VirtualBuffer, *kerr.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{physBase: physBase, length: length}
	if vb, ok := r.entries[k]; ok {
		vb.refs++
		return vb, nil
	}

	pageAligned := (length + sv39.PageSize - 1) &^ (sv39.PageSize - 1)
	virt := r.nextVA
	if err := r.table.Map(physBase, virt, pageAligned, sv39.Flags{V: true, R: true, W: true, X: true}); err != nil {
		return nil, err
	}
	r.nextVA += pageAligned

	vb := &VirtualBuffer{PhysBase: physBase, Length: length, VirtBase: virt, refs: 1}
	r.entries[k] = vb
	return vb, nil
}

// Put releases one reference to vb. The registry retains the mapping
// even at zero refs (unmapping would require splitting shared kernel
// tables no other window depends on freeing eagerly); a future refcount
// revival reuses the same window.
func (r *Registry) Put(vb *VirtualBuffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if vb.refs > 0 {
		vb.refs--
	}
}

// RefCount reports the current refcount for a window, for tests.
func (r *Registry) RefCount(physBase, length uint64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if vb, ok := r.entries[key{physBase: physBase, length: length}]; ok {
		return vb.refs
	}
	return 0
}
