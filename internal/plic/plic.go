// Package plic models the platform-level interrupt controller that routes
// external interrupt ids to harts. The bootstrap assembly, linker script,
// and real PLIC MMIO register layout are out of scope (§1); this package
// defines only the narrow interface the core consumes (Controller) plus a
// Sim implementation backing "sim" mode builds.
package plic

// DefaultPriority is restored on an id when its last handler deregisters.
const DefaultPriority = 1

// Controller is the narrow PLIC interface the external-interrupt
// dispatcher consumes (§4.6). A real qemuriscv build backs this with MMIO
// register writes (out of scope); sim mode backs it with Sim below.
type Controller interface {
	// Enable sets whether interrupt id is enabled for this hart's context.
	Enable(id uint32, enabled bool)
	// SetPriority sets the priority of interrupt id.
	SetPriority(id uint32, priority uint32)
	// Claim returns the highest-priority pending interrupt id, or 0 if
	// none is pending (0 is never a valid interrupt id on the PLIC).
	Claim() uint32
	// Complete acknowledges that id has been serviced.
	Complete(id uint32)
}

// Sim is an in-memory PLIC stand-in for "sim" mode and for tests: it
// tracks enabled/priority state per id and lets test code raise an
// interrupt by calling Raise, which is what Claim subsequently reports.
type Sim struct {
	enabled  map[uint32]bool
	priority map[uint32]uint32
	pending  []uint32
}

// NewSim returns an empty simulated PLIC.
func NewSim() *Sim {
	return &Sim{
		enabled:  make(map[uint32]bool),
		priority: make(map[uint32]uint32),
	}
}

func (s *Sim) Enable(id uint32, enabled bool) { s.enabled[id] = enabled }

func (s *Sim) SetPriority(id uint32, priority uint32) { s.priority[id] = priority }

func (s *Sim) IsEnabled(id uint32) bool { return s.enabled[id] }

func (s *Sim) Priority(id uint32) uint32 {
	if p, ok := s.priority[id]; ok {
		return p
	}
	return DefaultPriority
}

// Raise marks id as pending, as if the device behind it had just signaled.
// Has no effect if the id is not enabled, matching real PLIC semantics.
func (s *Sim) Raise(id uint32) {
	if !s.enabled[id] {
		return
	}
	s.pending = append(s.pending, id)
}

// Claim returns and removes the highest-priority pending id.
func (s *Sim) Claim() uint32 {
	if len(s.pending) == 0 {
		return 0
	}
	bestIdx := 0
	for i, id := range s.pending {
		if s.Priority(id) > s.Priority(s.pending[bestIdx]) {
			bestIdx = i
		}
	}
	id := s.pending[bestIdx]
	s.pending = append(s.pending[:bestIdx], s.pending[bestIdx+1:]...)
	return id
}

func (s *Sim) Complete(id uint32) {}
