package handle

import (
	"testing"

	"rvkernel/internal/sv39"
	"rvkernel/internal/vbuf"
)

func newTestDeviceBufferBackend() *DeviceBufferBackend {
	arena := sv39.NewFrameArena(0x90000000)
	table := sv39.New(arena)
	registry := vbuf.New(table, 0xC0000000)
	return NewDeviceBufferBackend(registry).(*DeviceBufferBackend)
}

func TestDeviceBufferBackendReadWriteAdvanceASharedCursor(t *testing.T) {
	b := newTestDeviceBufferBackend()

	if _, err := b.Open(1, []uint64{0x10001000, 16}); err != nil {
		t.Fatalf("unexpected error from Open: %v", err)
	}

	wf, err := b.Write(1, make([]byte, 10), nil)
	if err != nil {
		t.Fatalf("unexpected error from Write: %v", err)
	}
	_, n, _ := wf.Poll(nil)
	if n != 10 {
		t.Fatalf("expected 10 bytes written, got %v", n)
	}

	rf, err := b.Read(1, make([]byte, 10), nil)
	if err != nil {
		t.Fatalf("unexpected error from Read: %v", err)
	}
	_, rn, _ := rf.Poll(nil)
	// Only 6 bytes remain in the 16-byte window after the 10-byte write.
	if rn != 6 {
		t.Errorf("expected the read clamped to the 6 remaining bytes, got %v", rn)
	}

	if err := b.Close(1, nil); err != nil {
		t.Errorf("unexpected error from Close: %v", err)
	}
}

func TestDeviceBufferBackendOpenRequiresPhysBaseAndLength(t *testing.T) {
	b := newTestDeviceBufferBackend()
	if _, err := b.Open(1, []uint64{0x10001000}); err == nil {
		t.Fatal("expected Open with only one option to fail")
	}
}

func TestDeviceBufferBackendReadOnUnopenedFdIsNotFound(t *testing.T) {
	b := newTestDeviceBufferBackend()
	if _, err := b.Read(1, make([]byte, 4), nil); err == nil {
		t.Fatal("expected Read on an fd never Open'd to fail")
	}
}
