package handle

import (
	"sync"

	"rvkernel/internal/extint"
	"rvkernel/internal/future"
	"rvkernel/internal/kerr"
)

// InterruptBackend waits for an external interrupt to fire (§4.8).
// open(id) stores the interrupt id for fdID; read polls an
// ExternalInterruptFuture for it, matching original_source's
// InterruptHandleBackend.
type InterruptBackend struct {
	Unimplemented

	dispatcher *extint.Dispatcher

	mu      sync.Mutex
	ids     map[uint64]uint32
	futures map[uint64]*extint.Future
}

// NewInterruptBackend constructs the Interrupt singleton over dispatcher.
func NewInterruptBackend(dispatcher *extint.Dispatcher) Backend {
	return &InterruptBackend{
		dispatcher: dispatcher,
		ids:        make(map[uint64]uint32),
		futures:    make(map[uint64]*extint.Future),
	}
}

func (b *InterruptBackend) Name() string { return "InterruptBackend" }

func (b *InterruptBackend) Open(fdID uint64, options []uint64) (any, *kerr.Error) {
	if len(options) < 1 {
		return nil, kerr.New("handle.interrupt", kerr.KindInvalidInput, "missing interrupt id option")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids[fdID] = uint32(options[0])
	return options[0], nil
}

func (b *InterruptBackend) Read(fdID uint64, _ []byte, _ []uint64) (future.Future, *kerr.Error) {
	b.mu.Lock()
	id, ok := b.ids[fdID]
	if !ok {
		b.mu.Unlock()
		return nil, kerr.New("handle.interrupt", kerr.KindNotFound, "fd not open")
	}
	f := b.futures[fdID]
	if f == nil {
		f = extint.NewFuture(b.dispatcher, id)
		b.futures[fdID] = f
	}
	b.mu.Unlock()
	return f, nil
}

func (b *InterruptBackend) Close(fdID uint64, _ []uint64) *kerr.Error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if f, ok := b.futures[fdID]; ok {
		f.Close()
		delete(b.futures, fdID)
	}
	delete(b.ids, fdID)
	return nil
}

var _ Backend = (*InterruptBackend)(nil)
