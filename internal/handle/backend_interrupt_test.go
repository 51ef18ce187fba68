package handle

import (
	"testing"

	"rvkernel/internal/extint"
	"rvkernel/internal/future"
	"rvkernel/internal/plic"
)

func TestInterruptBackendReadIsPendingUntilTheInterruptFires(t *testing.T) {
	sim := plic.NewSim()
	dispatcher := extint.New(sim)
	b := NewInterruptBackend(dispatcher).(*InterruptBackend)

	const interruptID = 7
	if _, err := b.Open(1, []uint64{interruptID}); err != nil {
		t.Fatalf("unexpected error from Open: %v", err)
	}

	f, err := b.Read(1, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error from Read: %v", err)
	}

	poll, _, _ := f.Poll(future.NewWaker(1, func(uint64) {}))
	if poll != future.Pending {
		t.Fatalf("expected Pending before the interrupt fires, got %v", poll)
	}

	sim.Raise(interruptID)
	dispatcher.Dispatch()

	poll2, _, perr := f.Poll(future.NewWaker(1, func(uint64) {}))
	if poll2 != future.Ready {
		t.Fatalf("expected Ready once the interrupt was dispatched, got %v (err %v)", poll2, perr)
	}

	if err := b.Close(1, nil); err != nil {
		t.Errorf("unexpected error from Close: %v", err)
	}
}

func TestInterruptBackendReadOnUnopenedFdIsNotFound(t *testing.T) {
	dispatcher := extint.New(plic.NewSim())
	b := NewInterruptBackend(dispatcher).(*InterruptBackend)
	if _, err := b.Read(1, nil, nil); err == nil {
		t.Fatal("expected Read on an fd never Open'd to fail")
	}
}
