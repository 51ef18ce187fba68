package sv39

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestTable() *PageTable {
	// Kernel page-table frames live at a notional physical base well above
	// any frame the test maps, so arena frames and mapped leaves never
	// collide.
	return New(NewFrameArena(0x90000000))
}

func TestMapQueryRoundTrip(t *testing.T) {
	pt := newTestTable()
	flags := Flags{R: true, W: true}

	const phys, virt, length = 0x80100000, 0x1000, 0x4000
	if err := pt.Map(phys, virt, length, flags); err != nil {
		t.Fatalf("Map: %v", err)
	}

	for i := uint64(0); i < length; i += 0x400 {
		tr, ok := pt.Query(virt + i)
		if !ok {
			t.Fatalf("Query(%#x): not mapped", virt+i)
		}
		if tr.PhysAddr != phys+i {
			t.Errorf("Query(%#x) = %#x, want %#x", virt+i, tr.PhysAddr, phys+i)
		}
	}
}

func TestQueryUnmappedIsInvalid(t *testing.T) {
	pt := newTestTable()
	if _, ok := pt.Query(0x2000); ok {
		t.Fatal("expected unmapped query to fail")
	}
}

func TestMapUsesGigapageWhenAligned(t *testing.T) {
	pt := newTestTable()
	flags := Flags{R: true, W: true, X: true}
	if err := pt.Map(0, 0, GigaSize, flags); err != nil {
		t.Fatalf("Map: %v", err)
	}

	root := pt.arena.Frame(pt.root)
	pte := root[0]
	if !pte.Valid() || !pte.Flags().IsLeaf() {
		t.Fatalf("expected a gigapage leaf at root[0], got %#x", uint64(pte))
	}
}

func TestSplitPreservesTranslation(t *testing.T) {
	pt := newTestTable()
	flags := Flags{R: true, W: true, X: true}

	// A full gigapage leaf, then a narrower overlapping map that forces a
	// split down to 4 KiB granularity.
	if err := pt.Map(0, 0, GigaSize, flags); err != nil {
		t.Fatalf("Map(giga): %v", err)
	}

	probe := uint64(HugeSize * 3) // untouched by the narrower map below
	before, ok := pt.Query(probe)
	if !ok {
		t.Fatalf("Query(%#x) before split: not mapped", probe)
	}

	narrowFlags := Flags{R: true, W: true}
	if err := pt.Map(HugeSize, HugeSize, PageSize, narrowFlags); err != nil {
		t.Fatalf("Map(narrow): %v", err)
	}

	after, ok := pt.Query(probe)
	if !ok {
		t.Fatalf("Query(%#x) after split: not mapped", probe)
	}
	if after.PhysAddr != before.PhysAddr || after.Flags != before.Flags {
		t.Errorf("split did not preserve translation: before=%+v after=%+v", before, after)
	}

	narrow, ok := pt.Query(HugeSize + 0x10)
	if !ok {
		t.Fatalf("Query of narrow mapping failed")
	}
	if narrow.PhysAddr != HugeSize+0x10 {
		t.Errorf("narrow mapping translated to %#x, want %#x", narrow.PhysAddr, HugeSize+0x10)
	}
	if narrow.Flags.X {
		t.Errorf("narrow mapping unexpectedly inherited X flag")
	}
}

func TestIdentityMapGigapages(t *testing.T) {
	pt := newTestTable()
	pt.IdentityMapGigapages()

	for _, addr := range []uint64{0, GigaSize, GigaSize * 511} {
		tr, ok := pt.Query(addr)
		if !ok {
			t.Fatalf("Query(%#x): not mapped", addr)
		}
		if tr.PhysAddr != addr {
			t.Errorf("Query(%#x) = %#x, want identity %#x", addr, tr.PhysAddr, addr)
		}
	}
}

func TestMapOutOfRangeIsQuiet(t *testing.T) {
	pt := newTestTable()
	if err := pt.Map(0, 1<<39, PageSize, Flags{R: true}); err != nil {
		t.Fatalf("expected quiet no-op, got %v", err)
	}
}

func TestMapBumpsFenceCount(t *testing.T) {
	pt := newTestTable()
	flags := Flags{R: true, W: true}

	assert.Equal(t, uint64(0), pt.FenceCount, "FenceCount before any Map")

	assert.Nil(t, pt.Map(0x80100000, 0x1000, PageSize, flags))
	assert.Equal(t, uint64(1), pt.FenceCount, "FenceCount after one successful Map")

	assert.Nil(t, pt.Map(0x80101000, 0x2000, PageSize, flags))
	assert.Equal(t, uint64(2), pt.FenceCount, "FenceCount after a second successful Map")
}
