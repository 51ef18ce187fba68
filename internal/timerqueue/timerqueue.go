// Package timerqueue is the per-hart min-ordered set of future timer
// events feeding a single SBI timer (§4.7, §3 TimerEvent).
package timerqueue

import (
	"container/heap"
	"sync"

	"rvkernel/internal/sbi"
)

// Cause distinguishes why a TimerEvent was scheduled. Declared in the
// order that makes the zero value the tie-break winner: two events due at
// the same instant prefer ContextSwitch, so a timed-out future never
// blocks preemption (§4.3 Tie-break).
type Cause int

const (
	ContextSwitch Cause = iota
	TimeoutFuture
)

// TimerEvent is a single entry in a hart's timer heap.
type TimerEvent struct {
	Instant uint64
	Cause   Cause
}

// Queue is a per-hart min-heap of TimerEvents, ordered (instant
// ascending, then Cause ascending) so ContextSwitch sorts before
// TimeoutFuture at equal instants.
type Queue struct {
	mu   sync.Mutex
	heap eventHeap
	sbi  sbi.Client
}

// New returns an empty queue that programs its hart's timer through sbi.
func New(client sbi.Client) *Queue {
	return &Queue{sbi: client}
}

// ScheduleAt unconditionally inserts event.
func (q *Queue) ScheduleAt(event TimerEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.heap, event)
}

// ScheduleAtOrEarlier inserts event unless an event of the same Cause
// already in the heap has a strictly earlier Instant (§9 Open Question
// (b): the current behavior only dedupes against an earlier existing
// event; an existing same-cause event with a later instant does not
// block insertion — both remain, and the earlier one is served first).
func (q *Queue) ScheduleAtOrEarlier(event TimerEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.heap {
		if e.Cause == event.Cause && e.Instant < event.Instant {
			return
		}
	}
	heap.Push(&q.heap, event)
}

// PopDue pops and returns every event with Instant <= now, in increasing
// (instant, cause) order, matching the trap dispatcher's "pop all due
// TimerEvents" behavior (§4.2).
func (q *Queue) PopDue(now uint64) []TimerEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []TimerEvent
	for len(q.heap) > 0 && q.heap[0].Instant <= now {
		due = append(due, heap.Pop(&q.heap).(TimerEvent))
	}
	return due
}

// ScheduleNext peeks the new minimum and programs the SBI timer for it.
// If the heap is empty, no timer is programmed, preserving §4.7's
// invariant: after any scheduler-visible operation, either the heap is
// empty or the SBI timer is armed for its min instant.
func (q *Queue) ScheduleNext() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return
	}
	q.sbi.SetTimer(q.heap[0].Instant)
}

// Len returns the number of pending events, for tests and invariant
// checks (§8 invariant 7).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// HasCause reports whether an event of the given cause is pending.
func (q *Queue) HasCause(c Cause) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.heap {
		if e.Cause == c {
			return true
		}
	}
	return false
}

type eventHeap []TimerEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Instant != h[j].Instant {
		return h[i].Instant < h[j].Instant
	}
	return h[i].Cause < h[j].Cause
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(TimerEvent)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
