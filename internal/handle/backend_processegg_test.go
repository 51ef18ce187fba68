package handle

import (
	"encoding/binary"
	"testing"

	"rvkernel/internal/future"
	"rvkernel/internal/kerr"
	"rvkernel/internal/sv39"
	"rvkernel/internal/trapframe"
)

func newTestProcessEggBackend(t *testing.T, spawn SpawnFunc) *ProcessEggBackend {
	t.Helper()
	arena := sv39.NewFrameArena(0x90000000)
	return NewProcessEggBackend(arena, 0xA0000000, sv39.GigaSize, spawn).(*ProcessEggBackend)
}

func entryPacket(pc uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = eggPacketEntry
	binary.LittleEndian.PutUint64(buf[1:9], pc)
	return buf
}

func memoryPacket(virt uint64, data []byte) []byte {
	buf := make([]byte, 9+len(data))
	buf[0] = eggPacketMemory
	binary.LittleEndian.PutUint64(buf[1:9], virt)
	copy(buf[9:], data)
	return buf
}

// TestProcessEggHatchSpawnsWithLoadedMemoryEntryAndName drives the egg
// packet stream named in the review: open, write Memory+Entry+Hatch
// packets, and assert the spawned process's root table translates the
// loaded memory and its entry PC matches the Entry packet.
func TestProcessEggHatchSpawnsWithLoadedMemoryEntryAndName(t *testing.T) {
	var gotName string
	var gotSatp trapframe.SatpValue
	var gotEntry uint64
	const spawnedPid = 42

	spawn := func(name string, satp trapframe.SatpValue, entryPC uint64) uint64 {
		gotName, gotSatp, gotEntry = name, satp, entryPC
		return spawnedPid
	}

	b := newTestProcessEggBackend(t, spawn)
	const fdID = 1
	if _, err := b.Open(fdID, nil); err != nil {
		t.Fatalf("unexpected error from Open: %v", err)
	}

	// White-box: keep the egg's table so we can query it below, since
	// Hatch deletes it from b.eggs.
	table := b.eggs[fdID].table

	const nameBytes = "init"
	if _, err := b.Write(fdID, append([]byte{eggPacketName}, nameBytes...), nil); err != nil {
		t.Fatalf("unexpected error writing Name packet: %v", err)
	}

	const entryPC = 0x1000
	if _, err := b.Write(fdID, entryPacket(entryPC), nil); err != nil {
		t.Fatalf("unexpected error writing Entry packet: %v", err)
	}

	const virt = 0x2000
	payload := []byte("hello process")
	if _, err := b.Write(fdID, memoryPacket(virt, payload), nil); err != nil {
		t.Fatalf("unexpected error writing Memory packet: %v", err)
	}

	// The memory packet must already be visible through the egg's own
	// table before Hatch runs.
	tr, ok := table.Query(virt)
	if !ok {
		t.Fatalf("expected the Memory packet's virtual address to be mapped")
	}
	loaded := b.data.page(tr.PhysAddr)
	if loaded == nil {
		t.Fatal("expected a backing data page for the loaded memory")
	}
	if got := string(loaded[:len(payload)]); got != string(payload) {
		t.Errorf("expected loaded memory %q, got %q", payload, got)
	}

	f, err := b.Write(fdID, []byte{eggPacketHatch}, nil)
	if err != nil {
		t.Fatalf("unexpected error writing Hatch packet: %v", err)
	}
	poll, value, perr := f.Poll(nil)
	if perr != nil {
		t.Fatalf("unexpected poll error: %v", perr)
	}
	if pid, ok := value.(uint64); poll != future.Ready || !ok || pid != spawnedPid {
		t.Errorf("expected Hatch's future to resolve to pid %d, got %v (poll=%v)", spawnedPid, value, poll)
	}

	if gotName != nameBytes {
		t.Errorf("expected spawn called with name %q, got %q", nameBytes, gotName)
	}
	if gotEntry != entryPC {
		t.Errorf("expected spawn called with entry PC %#x, got %#x", uint64(entryPC), gotEntry)
	}
	wantSatp := trapframe.NewSatp(table.RootPhysAddr())
	if gotSatp != wantSatp {
		t.Errorf("expected spawn called with satp %#x (the egg's own root table), got %#x", uint64(wantSatp), uint64(gotSatp))
	}

	if _, stillOpen := b.eggs[fdID]; stillOpen {
		t.Error("expected Hatch to remove the egg from the open-egg table")
	}
}

func TestProcessEggMemoryPacketIntoKernelRangeIsRejected(t *testing.T) {
	b := newTestProcessEggBackend(t, func(string, trapframe.SatpValue, uint64) uint64 { return 0 })
	const fdID = 1
	if _, err := b.Open(fdID, nil); err != nil {
		t.Fatalf("unexpected error from Open: %v", err)
	}

	_, err := b.Write(fdID, memoryPacket(kernelImageEnd, []byte("x")), nil)
	if err == nil || err.Kind != kerr.KindInvalidInput {
		t.Fatalf("expected KindInvalidInput for a Memory packet into the kernel image range, got %v", err)
	}
}

func TestProcessEggWriteToUnopenedFdIsNotFound(t *testing.T) {
	b := newTestProcessEggBackend(t, func(string, trapframe.SatpValue, uint64) uint64 { return 0 })
	if _, err := b.Write(1, []byte{eggPacketHatch}, nil); err == nil || err.Kind != kerr.KindNotFound {
		t.Fatalf("expected KindNotFound for a packet written to an fd never Open'd, got %v", err)
	}
}

func TestProcessEggOpenIdentityMapsTheKernelRange(t *testing.T) {
	b := newTestProcessEggBackend(t, func(string, trapframe.SatpValue, uint64) uint64 { return 0 })
	const fdID = 1
	if _, err := b.Open(fdID, nil); err != nil {
		t.Fatalf("unexpected error from Open: %v", err)
	}

	table := b.eggs[fdID].table
	tr, ok := table.Query(kernelImageEnd)
	if !ok || tr.PhysAddr != kernelImageEnd {
		t.Errorf("expected the kernel range identity-mapped from %#x, got %+v ok=%v", uint64(kernelImageEnd), tr, ok)
	}
}
