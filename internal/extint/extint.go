// Package extint is the external-interrupt dispatcher: registration and
// fan-out of PLIC-sourced interrupt ids to handlers, with RAII-style
// unregistration (§4.6). The handler map is hart-wide — one Dispatcher
// per hart, per §3's ExternalInterruptFuture description — not a single
// global map.
package extint

import (
	"sync"
	"sync/atomic"

	"rvkernel/internal/future"
	"rvkernel/internal/plic"
)

// EnabledPriority is the priority programmed on an interrupt id while it
// has at least one registered handler.
const EnabledPriority = 3

// Handler is invoked on each claimed interrupt for a registered id. It
// must be non-blocking: it runs while the handler list's read lock is
// held.
type Handler func(id uint32)

type registeredHandler struct {
	seq uint64
	fn  Handler
}

// Dispatcher owns one hart's interrupt-id -> handler-list map.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[uint32][]registeredHandler
	nextSeq  uint64
	plic     plic.Controller
}

// New returns a Dispatcher backed by the given PLIC controller.
func New(controller plic.Controller) *Dispatcher {
	return &Dispatcher{handlers: make(map[uint32][]registeredHandler), plic: controller}
}

// Registration is an RAII-style guard: Close deregisters the handler it
// was returned for. Go has no destructors, so callers are expected to
// `defer reg.Close()` or hold the guard for the registration's intended
// lifetime.
type Registration struct {
	d    *Dispatcher
	id   uint32
	seq  uint64
	once sync.Once
}

// Close deregisters this handler. On the last deregistration for its id,
// the PLIC is disabled and its priority restored to the default.
func (r *Registration) Close() {
	r.once.Do(func() {
		r.d.deregister(r.id, r.seq)
	})
}

// Register adds handler fn for interrupt id. On first registration for
// id, the id is enabled on the local PLIC and its priority set.
func (d *Dispatcher) Register(id uint32, fn Handler) *Registration {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextSeq++
	seq := d.nextSeq
	wasEmpty := len(d.handlers[id]) == 0
	d.handlers[id] = append(d.handlers[id], registeredHandler{seq: seq, fn: fn})

	if wasEmpty {
		d.plic.SetPriority(id, EnabledPriority)
		d.plic.Enable(id, true)
	}

	return &Registration{d: d, id: id, seq: seq}
}

func (d *Dispatcher) deregister(id uint32, seq uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.handlers[id]
	for i, h := range list {
		if h.seq == seq {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(d.handlers, id)
		d.plic.Enable(id, false)
		d.plic.SetPriority(id, plic.DefaultPriority)
	} else {
		d.handlers[id] = list
	}
}

// Dispatch claims the highest-priority pending interrupt from the PLIC,
// invokes each registered handler for it under a read lock, and completes
// it. Returns the claimed id (0 if none was pending).
func (d *Dispatcher) Dispatch() uint32 {
	id := d.plic.Claim()
	if id == 0 {
		return 0
	}

	d.mu.RLock()
	for _, h := range d.handlers[id] {
		h.fn(id)
	}
	d.mu.RUnlock()

	d.plic.Complete(id)
	return id
}

// Future is an ExternalInterruptFuture adapter (§3, §4.6): it holds one
// Registration, counts invocations atomically, wakes its waker on each,
// and on Poll consumes one count or retains the waker.
type Future struct {
	reg     *Registration
	count   atomic.Int64
	mu      sync.Mutex
	waiting *future.Waker
}

// NewFuture registers a handler for id that increments the future's
// signaled count and wakes any waiting Waker, then returns the Future.
func NewFuture(d *Dispatcher, id uint32) *Future {
	f := &Future{}
	f.reg = d.Register(id, func(uint32) {
		f.count.Add(1)
		f.mu.Lock()
		w := f.waiting
		f.waiting = nil
		f.mu.Unlock()
		w.Wake()
	})
	return f
}

// Close releases the underlying registration.
func (f *Future) Close() { f.reg.Close() }

// Poll implements future.Future: it consumes one pending signal if
// available, otherwise retains w to be woken on the next interrupt.
func (f *Future) Poll(w *future.Waker) (future.Poll, any, error) {
	for {
		cur := f.count.Load()
		if cur == 0 {
			f.mu.Lock()
			f.waiting = w
			f.mu.Unlock()
			return future.Pending, nil, nil
		}
		if f.count.CompareAndSwap(cur, cur-1) {
			return future.Ready, nil, nil
		}
	}
}

var _ future.Future = (*Future)(nil)
