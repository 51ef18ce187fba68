// Package sbi models the firmware layer below the supervisor. The real
// SBI ecall client helpers are out of scope (§1); this package defines
// only the narrow interface the timer queue and boot sequence consume
// (Client) plus a Sim implementation backing "sim" mode builds.
package sbi

// Client is the narrow SBI surface the kernel core consumes: absolute
// timer set, hart start/status, and shutdown.
type Client interface {
	// SetTimer programs the next timer interrupt for the calling hart to
	// fire at the given absolute instant (nanoseconds).
	SetTimer(instantNs uint64)
	// StartHart boots a secondary hart at the given entry point.
	StartHart(hartID uint64, entryPoint uint64) error
	// HartStatus reports whether hartID has been started.
	HartStatus(hartID uint64) (started bool)
	// Shutdown powers the machine off. Never returns on real hardware.
	Shutdown()
}

// Sim is a host-side SBI stand-in: SetTimer records the requested instant
// for inspection by tests instead of programming real hardware, and
// Shutdown panics instead of powering anything off.
type Sim struct {
	started    map[uint64]bool
	lastTimer  map[uint64]uint64
	shutdownFn func()
}

// NewSim returns a simulated SBI client. shutdownFn, if non-nil, is
// called instead of the default panic on Shutdown (useful for tests that
// want to assert a shutdown occurred without killing the test binary).
func NewSim(shutdownFn func()) *Sim {
	return &Sim{
		started:    make(map[uint64]bool),
		lastTimer:  make(map[uint64]uint64),
		shutdownFn: shutdownFn,
	}
}

func (s *Sim) SetTimer(instantNs uint64) {
	// Sim mode is single-hart-context per Client instance; callers create
	// one Sim per simulated hart (see internal/hart).
	s.lastTimer[0] = instantNs
}

// LastTimer returns the last instant passed to SetTimer, for assertions.
func (s *Sim) LastTimer() uint64 { return s.lastTimer[0] }

func (s *Sim) StartHart(hartID uint64, entryPoint uint64) error {
	s.started[hartID] = true
	return nil
}

func (s *Sim) HartStatus(hartID uint64) bool { return s.started[hartID] }

func (s *Sim) Shutdown() {
	if s.shutdownFn != nil {
		s.shutdownFn()
		return
	}
	panic("sbi: shutdown")
}
