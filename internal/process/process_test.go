package process

import (
	"testing"

	"rvkernel/internal/trapframe"
)

func spawnPending(t *testing.T, table *Table, sched *Scheduler) uint64 {
	t.Helper()
	return New(table, sched, trapframe.NewSatp(0), func(p *Process) {
		p.Name = "test"
	})
}

func TestAllocatePidStartsAtTwo(t *testing.T) {
	table := NewTable()
	pid := table.AllocatePid()
	if pid != 2 {
		t.Fatalf("expected first pid to be 2, got %d", pid)
	}
}

func TestAllocatePidSkipsUsed(t *testing.T) {
	table := NewTable()
	a := table.AllocatePid()
	b := table.AllocatePid()
	if a == b {
		t.Fatalf("expected distinct pids, got %d twice", a)
	}
	table.Delete(a)
	c := table.AllocatePid()
	if c != a {
		t.Errorf("expected freed pid %d to be reused, got %d", a, c)
	}
}

func TestGetIsFalseUntilPublished(t *testing.T) {
	table := NewTable()
	pid := table.AllocatePid()
	if _, ok := table.Get(pid); ok {
		t.Fatal("expected reserved-but-unpublished pid to be not-found")
	}
}

func TestYieldMaybeConsumesWakeCredit(t *testing.T) {
	p := &Process{state: Running}
	p.MakePendingWhenPossible() // not Yielded yet: queues a credit
	if p.State() != Running {
		t.Fatalf("expected state unchanged by queued wake, got %v", p.State())
	}

	// The credit should cause the next voluntary yield to be skipped.
	if p.YieldMaybe() {
		t.Fatal("expected YieldMaybe to consume the credit instead of yielding")
	}
	if p.State() != Running {
		t.Fatalf("expected state to remain Running after consumed credit, got %v", p.State())
	}

	// With no credit left, the next yield actually yields.
	if !p.YieldMaybe() {
		t.Fatal("expected YieldMaybe to yield once the credit is spent")
	}
	if p.State() != Yielded {
		t.Fatalf("expected Yielded, got %v", p.State())
	}
}

func TestMakePendingWhenPossibleWakesYielded(t *testing.T) {
	p := &Process{state: Yielded}
	p.MakePendingWhenPossible()
	if p.State() != Pending {
		t.Fatalf("expected Pending after waking a Yielded process, got %v", p.State())
	}
}
