package process

import "sync"

// Scheduler is the round-robin schedule queue shared by all harts (§4.3), holding
// pids in enrollment/rotation order. Liveness of each pid is checked
// against a Table on every scan rather than stored as a language-level
// weak pointer (Go has none): a dead entry is simply a pid the Table no
// longer knows about.
type Scheduler struct {
	mu    sync.Mutex
	queue []uint64
	table *Table
}

// NewScheduler returns an empty Scheduler backed by table for liveness
// checks.
func NewScheduler(table *Table) *Scheduler {
	return &Scheduler{table: table}
}

// Enroll appends pid to the back of the queue.
func (s *Scheduler) Enroll(pid uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, pid)
}

// Schedule scans the queue for the first live, Pending entry, marks it
// Scheduled, prunes exactly one contiguous run of dead entries
// encountered along the way (a later, non-contiguous dead entry is left
// for the next call), and — only if a pid was found — rotates the whole
// resulting queue left by exactly one position before returning. This
// mirrors the original kernel's schedule() precisely: the rotation is
// unconditional and applies to the entire queue, not to wherever the
// picked entry happened to be.
func (s *Scheduler) Schedule() (pid uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removedMin, removedMax := -1, -1
	found := -1

	for idx := 0; idx < len(s.queue); idx++ {
		p := s.queue[idx]
		proc, alive := s.table.Get(p)
		if !alive {
			if removedMin == -1 {
				removedMin, removedMax = idx, idx
			} else if idx == removedMax+1 {
				removedMax = idx
			}
			continue
		}
		if proc.CanBeScheduled() {
			found = idx
			break
		}
	}

	if removedMin != -1 {
		s.queue = append(s.queue[:removedMin], s.queue[removedMax+1:]...)
		if found > removedMax {
			found -= removedMax - removedMin + 1
		}
	}

	if found == -1 {
		return 0, false
	}

	pid = s.queue[found]
	if proc, alive := s.table.Get(pid); alive {
		proc.SetState(Scheduled)
	}

	if len(s.queue) > 0 {
		first := s.queue[0]
		s.queue = append(s.queue[1:], first)
	}

	return pid, true
}

// Len returns the current queue length, for tests.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
