// Package hart is the per-hart data registry: PLIC handle, boot-context
// frame, panic flag, idle-process id, and the current-frame slot that
// stands in for the supervisor scratch register (§2, §3).
package hart

import (
	"sync"
	"sync/atomic"

	"rvkernel/internal/plic"
	"rvkernel/internal/sbi"
	"rvkernel/internal/trapframe"
)

// Hart holds the state owned by a single hardware thread.
type Hart struct {
	ID   uint64
	PLIC plic.Controller
	SBI  sbi.Client

	// BootFrame is the frame control returns to if the running frame must
	// be abandoned (e.g. the running process is deleted) — see §5
	// Cancellation.
	BootFrame *trapframe.TrapFrame

	panicked atomic.Bool
	current  atomic.Pointer[trapframe.TrapFrame]

	// IdleProcessPid is 0 until an idle process has been created for this
	// hart (§4.4).
	IdleProcessPid atomic.Uint64

	// InterruptMask models "interrupts disabled while a shared lock is
	// held in non-interrupt context" (§5 Locking discipline): held for
	// the duration of any trap-dispatcher handler.
	InterruptMask sync.Mutex
}

// CurrentFrame returns the frame currently pointed to by this hart's
// scratch slot, or nil before the hart has switched to anything.
func (h *Hart) CurrentFrame() *trapframe.TrapFrame { return h.current.Load() }

// SetCurrentFrame installs f as the frame this hart is running.
func (h *Hart) SetCurrentFrame(f *trapframe.TrapFrame) { h.current.Store(f) }

// Panicked reports whether this hart has recorded a fatal fault.
func (h *Hart) Panicked() bool { return h.panicked.Load() }

// MarkPanicked records a fatal fault on this hart (double-fault, etc.).
func (h *Hart) MarkPanicked() { h.panicked.Store(true) }

// Registry is the process-wide set of harts, created at boot and never
// destroyed (§9 Design Notes).
type Registry struct {
	mu    sync.RWMutex
	harts map[uint64]*Hart
}

// NewRegistry returns an empty hart registry.
func NewRegistry() *Registry {
	return &Registry{harts: make(map[uint64]*Hart)}
}

// Register adds a new hart. Called once per hart at boot.
func (r *Registry) Register(h *Hart) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.harts[h.ID] = h
}

// Get looks up a hart by id. A missing hart is a KindFatal condition at
// every call site (§7): "missing hart meta" is explicitly listed as a
// fatal kernel fault, so Get reports presence rather than synthesizing a
// placeholder.
func (r *Registry) Get(id uint64) (*Hart, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.harts[id]
	return h, ok
}

// All returns every registered hart, in no particular order.
func (r *Registry) All() []*Hart {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Hart, 0, len(r.harts))
	for _, h := range r.harts {
		out = append(out, h)
	}
	return out
}
