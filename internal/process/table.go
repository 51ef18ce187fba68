// Package process implements the process table, pid allocation, process
// states, and the round-robin scheduler (§3 Process/ProcessState/PidSlot,
// §4.3 Scheduler).
package process

import (
	"sync"

	"rvkernel/internal/handle"
	"rvkernel/internal/sv39"
	"rvkernel/internal/trapframe"
)

// State is a Process's position in its lifecycle (§3).
type State int

const (
	Running State = iota
	Yielded
	Pending
	Scheduled
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Yielded:
		return "yielded"
	case Pending:
		return "pending"
	case Scheduled:
		return "scheduled"
	default:
		return "unknown"
	}
}

// Process is a kernel-level process, supervisor or user (§3).
type Process struct {
	mu sync.Mutex

	IsSupervisor bool
	state        State
	Handles      *handle.Table
	Frame        *trapframe.TrapFrame
	Name         string
	UserID       uint64

	// RootTable is the process's own Sv39 address space, the live Go
	// object backing Frame.Satp. AllocPages maps into it directly rather
	// than through the SATP CSR, since sim mode has no hardware walker to
	// address indirectly (§6 AllocPages).
	RootTable *sv39.PageTable

	// KernelStack is the process's optional kernel-side stack (§3). Process
	// creation does not allocate it; it stays nil unless a caller sets it.
	KernelStack []byte

	noOpYieldCount int64
}

// State returns the process's current state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetState sets the process's state unconditionally.
func (p *Process) SetState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// CanBeScheduled reports whether the process is Pending.
func (p *Process) CanBeScheduled() bool { return p.State() == Pending }

// MakePendingWhenPossible turns a Yielded process into a Pending one (the
// waker's wake effect, §4.5). If the process isn't Yielded yet, the wake
// is queued as a no-op-yield credit so a subsequent voluntary yield is
// skipped instead of lost.
func (p *Process) MakePendingWhenPossible() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Yielded {
		p.state = Pending
		return
	}
	p.noOpYieldCount++
}

// YieldMaybe attempts a voluntary yield: it actually yields (moves to
// Yielded and returns true) unless a pending wake-up credit from an
// earlier MakePendingWhenPossible call is available, in which case it
// consumes the credit and returns false without yielding.
func (p *Process) YieldMaybe() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.noOpYieldCount == 0 {
		p.state = Yielded
		return true
	}
	p.noOpYieldCount--
	return false
}

// PidSlot is {Allocated (reserved, Process nil) | Used(Process)} (§3).
// Reservation is separated from publication so two harts cannot race on
// pid choice: AllocatePid reserves a slot while holding the table lock;
// the pid is only visible to lookups once Publish runs.
type PidSlot struct {
	Process *Process
}

// Table is the process-wide pid -> PidSlot map (§5 Shared-resource
// inventory: "Process table | all harts | creators, deleter").
type Table struct {
	mu    sync.RWMutex
	slots map[uint64]*PidSlot
}

// firstAllocatablePid is 2: pid 0 means "no process" (schedule()'s not-
// found sentinel) and pid 1 is reserved to the boot context (§8
// invariant 1).
const firstAllocatablePid = 2

// NewTable returns an empty process table.
func NewTable() *Table {
	return &Table{slots: make(map[uint64]*PidSlot)}
}

// AllocatePid reserves the lowest unused pid >= 2 and returns it. The
// reservation is recorded in the table immediately (as a slot with a nil
// Process) so no other hart can reuse the same pid, but Get treats an
// unpublished slot as not-found until Publish runs.
func (t *Table) AllocatePid() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	for pid := uint64(firstAllocatablePid); ; pid++ {
		if _, exists := t.slots[pid]; !exists {
			t.slots[pid] = &PidSlot{}
			return pid
		}
	}
}

// Publish makes pid visible to Get by attaching its Process.
func (t *Table) Publish(pid uint64, p *Process) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[pid] = &PidSlot{Process: p}
}

// Get returns the live process for pid, or ok=false if pid is unknown or
// only reserved (not yet published). This doubles as the "weak reference"
// upgrade the scheduler and wakers rely on: once Delete removes the slot,
// every future Get for that pid reports not-found.
func (t *Table) Get(pid uint64) (*Process, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	slot, ok := t.slots[pid]
	if !ok || slot.Process == nil {
		return nil, false
	}
	return slot.Process, true
}

// Delete removes pid's entry. The schedule queue is not touched here —
// pruning happens lazily the next time Schedule scans past the dead
// entry (§5 Cancellation).
func (t *Table) Delete(pid uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.slots, pid)
}

// Count returns the number of published (non-reserved-only) processes,
// for invariant checks.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, s := range t.slots {
		if s.Process != nil {
			n++
		}
	}
	return n
}
