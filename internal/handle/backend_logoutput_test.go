package handle

import (
	"testing"

	"rvkernel/internal/future"
)

func TestLogOutputBackendWriteCompletesImmediatelyWithByteCount(t *testing.T) {
	b := NewLogOutputBackend()

	if _, err := b.Open(1, nil); err != nil {
		t.Fatalf("unexpected error from Open: %v", err)
	}

	f, err := b.Write(1, []byte("booting hart 0"), nil)
	if err != nil {
		t.Fatalf("unexpected error from Write: %v", err)
	}

	poll, value, perr := f.Poll(nil)
	if poll != future.Ready {
		t.Fatalf("expected Write's future to be immediately Ready, got %v", poll)
	}
	if perr != nil {
		t.Errorf("unexpected poll error: %v", perr)
	}
	if value != 14 {
		t.Errorf("expected value 14 (bytes written), got %v", value)
	}

	if err := b.Close(1, nil); err != nil {
		t.Errorf("unexpected error from Close: %v", err)
	}
}

func TestLogOutputBackendReadIsUnimplemented(t *testing.T) {
	b := NewLogOutputBackend()
	if _, err := b.Read(1, make([]byte, 4), nil); err == nil {
		t.Fatal("expected Read to be unimplemented for a write-only backend")
	}
}
