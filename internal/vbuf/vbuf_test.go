package vbuf

import (
	"testing"

	"rvkernel/internal/sv39"
)

func newTestRegistry() *Registry {
	arena := sv39.NewFrameArena(0x90000000)
	table := sv39.New(arena)
	return New(table, 0xC0000000)
}

func TestGetMapsOnFirstRequest(t *testing.T) {
	r := newTestRegistry()
	vb, err := r.Get(0x10001000, 0x1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vb.VirtBase != 0xC0000000 {
		t.Errorf("expected first window at virtBase, got 0x%x", vb.VirtBase)
	}
	if got, ok := r.table.Query(vb.VirtBase); !ok || got.PhysAddr != 0x10001000 {
		t.Errorf("expected virtBase to translate to physBase, got %+v ok=%v", got, ok)
	}
}

func TestGetReusesWindowAndBumpsRefcount(t *testing.T) {
	r := newTestRegistry()
	first, err := r.Get(0x20000000, 0x2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.Get(0x20000000, 0x2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Error("expected the same VirtualBuffer for a repeat request")
	}
	if r.RefCount(0x20000000, 0x2000) != 2 {
		t.Errorf("expected refcount 2, got %d", r.RefCount(0x20000000, 0x2000))
	}
}

func TestDistinctWindowsGetDistinctVirtBases(t *testing.T) {
	r := newTestRegistry()
	a, _ := r.Get(0x10000000, 0x1000)
	b, _ := r.Get(0x11000000, 0x1000)
	if a.VirtBase == b.VirtBase {
		t.Error("expected distinct physical windows to get distinct virtual bases")
	}
}

func TestPutDecrementsRefcountWithoutUnmapping(t *testing.T) {
	r := newTestRegistry()
	vb, _ := r.Get(0x30000000, 0x1000)
	r.Put(vb)
	if r.RefCount(0x30000000, 0x1000) != 0 {
		t.Errorf("expected refcount 0 after Put, got %d", r.RefCount(0x30000000, 0x1000))
	}
	if _, ok := r.table.Query(vb.VirtBase); !ok {
		t.Error("expected the mapping to remain in place after refcount hits zero")
	}
}
