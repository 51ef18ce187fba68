// Package handle is the per-process fd table and the handle-backend
// registry (§4.8). A process owns a monotonic fd -> Handle map; opening a
// backend looks it up (or lazily constructs its process-wide singleton)
// and records a reference to it keyed by its stable backend id.
package handle

import (
	"sync"

	"rvkernel/internal/future"
	"rvkernel/internal/kerr"
)

// Backend is a handle backend (§6 external interface). Open/Read/Write
// may suspend by returning a Future that is not immediately Ready; Close
// never suspends.
type Backend interface {
	Open(fdID uint64, options []uint64) (any, *kerr.Error)
	Read(fdID uint64, buf []byte, options []uint64) (future.Future, *kerr.Error)
	Write(fdID uint64, buf []byte, options []uint64) (future.Future, *kerr.Error)
	Close(fdID uint64, options []uint64) *kerr.Error
	Name() string
}

// Unimplemented is embedded by backends that only implement a subset of
// Backend, mirroring original_source's default trait methods that return
// StandardHandleErrors::Unimplemented.
type Unimplemented struct{}

func (Unimplemented) unimplemented() *kerr.Error {
	return kerr.New("handle", kerr.KindUnimplemented, "operation not supported by this backend")
}

func (u Unimplemented) Open(uint64, []uint64) (any, *kerr.Error) { return nil, u.unimplemented() }
func (u Unimplemented) Read(uint64, []byte, []uint64) (future.Future, *kerr.Error) {
	return nil, u.unimplemented()
}
func (u Unimplemented) Write(uint64, []byte, []uint64) (future.Future, *kerr.Error) {
	return nil, u.unimplemented()
}
func (u Unimplemented) Close(uint64, []uint64) *kerr.Error { return nil }

// Handle is one process's reference to an open backend instance (§3).
type Handle struct {
	FdID        uint64
	Backend     Backend
	BackendID   uint64
	BackendMeta any
}

// Table is a process's fd -> Handle map (§4.8).
type Table struct {
	mu      sync.Mutex
	handles map[uint64]*Handle
	nextFd  uint64
}

// NewTable returns an empty handle table. fd 0 is never issued, matching
// the convention that 0 marks "no handle" in register-encoded returns.
func NewTable() *Table {
	return &Table{handles: make(map[uint64]*Handle), nextFd: 1}
}

// Open opens backendID through registry, records the resulting fd and
// returns it.
func (t *Table) Open(registry *Registry, backendID uint64, options []uint64) (uint64, *kerr.Error) {
	backend, err := registry.Get(backendID)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	fd := t.nextFd
	t.nextFd++
	t.mu.Unlock()

	meta, err := backend.Open(fd, options)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	t.handles[fd] = &Handle{FdID: fd, Backend: backend, BackendID: backendID, BackendMeta: meta}
	t.mu.Unlock()
	return fd, nil
}

// Get returns the handle for fd.
func (t *Table) Get(fd uint64) (*Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[fd]
	return h, ok
}

// Read reads through fd's backend.
func (t *Table) Read(fd uint64, buf []byte, options []uint64) (future.Future, *kerr.Error) {
	h, ok := t.Get(fd)
	if !ok {
		return nil, kerr.New("handle", kerr.KindNotFound, "no such fd")
	}
	return h.Backend.Read(fd, buf, options)
}

// Write writes through fd's backend.
func (t *Table) Write(fd uint64, buf []byte, options []uint64) (future.Future, *kerr.Error) {
	h, ok := t.Get(fd)
	if !ok {
		return nil, kerr.New("handle", kerr.KindNotFound, "no such fd")
	}
	return h.Backend.Write(fd, buf, options)
}

// Close closes and forgets fd.
func (t *Table) Close(fd uint64, options []uint64) *kerr.Error {
	h, ok := t.Get(fd)
	if !ok {
		return kerr.New("handle", kerr.KindNotFound, "no such fd")
	}
	err := h.Backend.Close(fd, options)
	t.mu.Lock()
	delete(t.handles, fd)
	t.mu.Unlock()
	return err
}

// CloseAll closes every fd still open, for process deletion (§5
// Cancellation: "drops ... any buffers it owns").
func (t *Table) CloseAll() {
	t.mu.Lock()
	fds := make([]uint64, 0, len(t.handles))
	for fd := range t.handles {
		fds = append(fds, fd)
	}
	t.mu.Unlock()

	for _, fd := range fds {
		t.Close(fd, nil)
	}
}
