package handle

import (
	"sync"
	"testing"
)

func TestRegistryGetConstructsOnFirstUse(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.RegisterConstructor(1, func() Backend {
		calls++
		return NewLogOutputBackend()
	})

	b, err := r.Get(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b == nil {
		t.Fatal("expected a non-nil backend")
	}
	if calls != 1 {
		t.Errorf("expected the constructor called once, got %d", calls)
	}
}

func TestRegistryGetReturnsSameSingletonOnRepeatCalls(t *testing.T) {
	r := NewRegistry()
	r.RegisterConstructor(1, func() Backend { return NewLogOutputBackend() })

	first, err := r.Get(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.Get(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Error("expected the same singleton across repeat Get calls")
	}
}

func TestRegistryGetUnregisteredIDIsNotFound(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get(99); err == nil {
		t.Fatal("expected an error for an unregistered backend id")
	}
}

// TestRegistryGetIsSingleflightedUnderConcurrentRace mirrors the doc
// comment's claim: "even if multiple harts race to open it concurrently."
func TestRegistryGetIsSingleflightedUnderConcurrentRace(t *testing.T) {
	r := NewRegistry()
	var calls int
	var mu sync.Mutex
	r.RegisterConstructor(1, func() Backend {
		mu.Lock()
		calls++
		mu.Unlock()
		return NewLogOutputBackend()
	})

	var wg sync.WaitGroup
	results := make([]Backend, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := r.Get(1)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results[i] = b
		}(i)
	}
	wg.Wait()

	for _, b := range results {
		if b != results[0] {
			t.Error("expected every racing caller to observe the same singleton")
		}
	}
	if calls != 1 {
		t.Errorf("expected exactly one construction despite the race, got %d", calls)
	}
}
