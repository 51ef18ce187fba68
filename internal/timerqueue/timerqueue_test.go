package timerqueue

import (
	"testing"

	"rvkernel/internal/sbi"
)

func TestTimeoutOrdering(t *testing.T) {
	q := New(sbi.NewSim(nil))
	q.ScheduleAt(TimerEvent{Instant: 1000, Cause: TimeoutFuture})
	q.ScheduleAt(TimerEvent{Instant: 1000, Cause: ContextSwitch})

	due := q.PopDue(1000)
	if len(due) != 2 {
		t.Fatalf("expected 2 due events, got %d", len(due))
	}
	if due[0].Cause != ContextSwitch {
		t.Errorf("expected ContextSwitch popped first, got %v", due[0].Cause)
	}
}

func TestScheduleAtOrEarlierDedupesOnlyEarlier(t *testing.T) {
	q := New(sbi.NewSim(nil))
	q.ScheduleAt(TimerEvent{Instant: 500, Cause: TimeoutFuture})

	// An existing same-cause event with an earlier instant: should not insert.
	q.ScheduleAtOrEarlier(TimerEvent{Instant: 1000, Cause: TimeoutFuture})
	if q.Len() != 1 {
		t.Fatalf("expected dedupe against earlier event, got len=%d", q.Len())
	}

	// An existing same-cause event with a later instant: should insert (per
	// Open Question (b), only *earlier* existing events dedupe).
	q.ScheduleAtOrEarlier(TimerEvent{Instant: 200, Cause: TimeoutFuture})
	if q.Len() != 2 {
		t.Fatalf("expected insertion alongside later event, got len=%d", q.Len())
	}
}

func TestScheduleNextProgramsMinInstant(t *testing.T) {
	client := sbi.NewSim(nil)
	q := New(client)
	q.ScheduleAt(TimerEvent{Instant: 5000, Cause: ContextSwitch})
	q.ScheduleAt(TimerEvent{Instant: 2000, Cause: TimeoutFuture})

	q.ScheduleNext()
	if client.LastTimer() != 2000 {
		t.Errorf("ScheduleNext armed %d, want 2000", client.LastTimer())
	}
}

func TestPopDueOnlyRemovesDueEvents(t *testing.T) {
	q := New(sbi.NewSim(nil))
	q.ScheduleAt(TimerEvent{Instant: 100, Cause: ContextSwitch})
	q.ScheduleAt(TimerEvent{Instant: 9000, Cause: ContextSwitch})

	due := q.PopDue(100)
	if len(due) != 1 {
		t.Fatalf("expected 1 due event, got %d", len(due))
	}
	if q.Len() != 1 {
		t.Errorf("expected 1 remaining event, got %d", q.Len())
	}
}
