// Package kerr defines the kernel's error taxonomy. Every error that
// crosses a subsystem boundary is a *Error carrying a Kind rather than an
// ad hoc string, so the syscall layer can encode it into a1/a2 without
// re-parsing anything.
package kerr

import "fmt"

// Kind classifies an Error for register encoding at the syscall boundary.
type Kind uint64

const (
	// KindNone is the zero value: no error.
	KindNone Kind = iota
	// KindFatal marks a fatal kernel fault: double fault, missing hart
	// meta, empty schedule queue with live processes, page table
	// corruption. The caller force-unlocks I/O and shuts the machine down.
	KindFatal
	// KindUserFault marks an illegal instruction or unmapped access by a
	// user process. The caller deletes the process and re-enters the
	// scheduler.
	KindUserFault
	// KindResourceExhausted marks no free pid or no free frame. No
	// allocator returns it: AllocatePid and FrameArena.Alloc grow without
	// bound and never report exhaustion (see DESIGN.md Open Question (a)).
	KindResourceExhausted
	// KindNotFound marks a missing file, fd, backend, or interrupt id.
	KindNotFound
	// KindUnimplemented marks an operation a backend does not support.
	KindUnimplemented
	// KindInvalidInput marks a malformed argument, e.g. an egg packet.
	KindInvalidInput
	// KindCancelled marks a future whose owning process was deleted while
	// it was still pending.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindFatal:
		return "fatal"
	case KindUserFault:
		return "user-fault"
	case KindResourceExhausted:
		return "resource-exhausted"
	case KindNotFound:
		return "not-found"
	case KindUnimplemented:
		return "unimplemented"
	case KindInvalidInput:
		return "invalid-input"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the kernel's uniform error type. Data holds up to two
// register-sized payload words, matching the syscall ABI's a1/a2 error
// encoding (§7).
type Error struct {
	Module  string
	Kind    Kind
	Message string
	Data    [2]uint64
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Module, e.Message, e.Kind)
}

// New constructs an Error with no payload words.
func New(module string, kind Kind, message string) *Error {
	return &Error{Module: module, Kind: kind, Message: message}
}

// WithData attaches up to two payload words and returns the receiver.
func (e *Error) WithData(d0, d1 uint64) *Error {
	e.Data = [2]uint64{d0, d1}
	return e
}

// Encode returns the (a1, a2) register pair for this error: a1 carries the
// Kind, a2 carries the first data word. Data[1] is a second payload word
// kept for richer internal logging; it is not part of the two-register
// ABI encoding. A nil receiver encodes success (0, 0).
func (e *Error) Encode() (a1, a2 uint64) {
	if e == nil {
		return 0, 0
	}
	return uint64(e.Kind), e.Data[0]
}
