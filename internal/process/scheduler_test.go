package process

import "testing"

func TestScheduleRoundRobin(t *testing.T) {
	table := NewTable()
	sched := NewScheduler(table)

	a := spawnPending(t, table, sched)
	b := spawnPending(t, table, sched)

	first, ok := sched.Schedule()
	if !ok || first != a {
		t.Fatalf("expected to schedule pid %d first, got %d ok=%v", a, first, ok)
	}

	// a is now Scheduled, not Pending, so b should be picked next even
	// though a is still enrolled.
	second, ok := sched.Schedule()
	if !ok || second != b {
		t.Fatalf("expected to schedule pid %d second, got %d ok=%v", b, second, ok)
	}
}

func TestScheduleReturnsFalseWhenNothingPending(t *testing.T) {
	table := NewTable()
	sched := NewScheduler(table)
	if _, ok := sched.Schedule(); ok {
		t.Fatal("expected Schedule to report false on an empty queue")
	}

	pid := spawnPending(t, table, sched)
	proc, _ := table.Get(pid)
	proc.SetState(Running)

	if _, ok := sched.Schedule(); ok {
		t.Fatal("expected Schedule to skip a non-Pending process")
	}
}

func TestScheduleRotatesWholeQueueByOne(t *testing.T) {
	table := NewTable()
	sched := NewScheduler(table)

	a := spawnPending(t, table, sched)
	b := spawnPending(t, table, sched)
	_ = spawnPending(t, table, sched) // c: present only to give the queue length 3

	pid, ok := sched.Schedule()
	if !ok || pid != a {
		t.Fatalf("expected pid %d, got %d", a, pid)
	}
	// Queue was [a,b,c]; rotate left by one regardless of where a was
	// found (it was at index 0) => [b,c,a].
	if sched.Len() != 3 {
		t.Fatalf("expected queue length unchanged at 3, got %d", sched.Len())
	}

	procB, _ := table.Get(b)
	if procB.State() != Pending {
		t.Fatalf("expected b to remain Pending, got %v", procB.State())
	}

	pid2, ok := sched.Schedule()
	if !ok || pid2 != b {
		t.Fatalf("expected pid %d next, got %d", b, pid2)
	}
}

func TestSchedulePrunesContiguousDeadRun(t *testing.T) {
	table := NewTable()
	sched := NewScheduler(table)

	a := spawnPending(t, table, sched)
	b := spawnPending(t, table, sched)
	c := spawnPending(t, table, sched)

	// Kill a and b (a contiguous dead run at the front of the queue),
	// leaving c as the only live, Pending entry.
	Delete(table, a)
	Delete(table, b)

	pid, ok := sched.Schedule()
	if !ok || pid != c {
		t.Fatalf("expected pid %d, got %d ok=%v", c, pid, ok)
	}
	if sched.Len() != 1 {
		t.Fatalf("expected dead run pruned, queue length 1, got %d", sched.Len())
	}
}

func TestSchedulePrunesDeadRunNotStartingAtIndexZero(t *testing.T) {
	table := NewTable()
	sched := NewScheduler(table)

	a := spawnPending(t, table, sched)
	b := spawnPending(t, table, sched)
	c := spawnPending(t, table, sched)

	// Queue is [a(Running), b(dead), c(Pending)]: the dead run starts at
	// index 1, preceded by a live entry, not at index 0.
	procA, _ := table.Get(a)
	procA.SetState(Running)
	Delete(table, b)

	pid, ok := sched.Schedule()
	if !ok || pid != c {
		t.Fatalf("expected pid %d, got %d ok=%v", c, pid, ok)
	}
	if sched.Len() != 2 {
		t.Fatalf("expected b pruned leaving queue length 2, got %d", sched.Len())
	}
}

func TestScheduleLeavesNonContiguousDeadForNextPass(t *testing.T) {
	table := NewTable()
	sched := NewScheduler(table)

	a := spawnPending(t, table, sched)
	b := spawnPending(t, table, sched)
	c := spawnPending(t, table, sched)
	d := spawnPending(t, table, sched)

	// Dead, alive-but-not-pending, dead: only the first dead entry forms
	// a contiguous run from index 0; the later dead entry is left alone.
	Delete(table, a)
	procB, _ := table.Get(b)
	procB.SetState(Running)
	Delete(table, c)

	pid, ok := sched.Schedule()
	if !ok || pid != d {
		t.Fatalf("expected pid %d, got %d ok=%v", d, pid, ok)
	}
	// Only a's contiguous run (length 1) was pruned; b and the dead c
	// entry both remain in the queue (c is dead but non-contiguous).
	if sched.Len() != 3 {
		t.Fatalf("expected only the contiguous run pruned, queue length 3, got %d", sched.Len())
	}
}
