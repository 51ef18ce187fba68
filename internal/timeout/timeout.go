// Package timeout implements TimeoutFuture: a Future that resolves once
// a given absolute instant has passed, driven by TimerEvents of cause
// TimeoutFuture (§4.2, §4.7). Grounded on original_source's timeout.rs.
package timeout

import (
	"sort"
	"sync"

	"rvkernel/internal/future"
	"rvkernel/internal/timerqueue"
)

// NowFunc returns the current time in nanoseconds.
type NowFunc func() uint64

type waitEntry struct {
	forTime uint64
	waker   *future.Waker
}

// Registry is the process-wide set of not-yet-fired timeouts waiting to
// be woken (original_source's WAITING_TIMEOUTS), kept sorted by forTime.
type Registry struct {
	mu      sync.Mutex
	waiting []waitEntry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry { return &Registry{} }

// register inserts (forTime, w) in sorted order unless an entry for the
// exact same forTime already exists, in which case it reports true and
// does nothing (original_source: two equal-instant timeouts share one
// scheduled TimerEvent).
func (r *Registry) register(forTime uint64, w *future.Waker) (alreadyPresent bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := sort.Search(len(r.waiting), func(i int) bool { return r.waiting[i].forTime >= forTime })
	if i < len(r.waiting) && r.waiting[i].forTime == forTime {
		return true
	}
	r.waiting = append(r.waiting, waitEntry{})
	copy(r.waiting[i+1:], r.waiting[i:])
	r.waiting[i] = waitEntry{forTime: forTime, waker: w}
	return false
}

// OnTimerEvent wakes and removes every waiting entry whose forTime is
// <= instant (called from the trap dispatcher on a TimeoutFuture
// TimerEvent, §4.2).
func (r *Registry) OnTimerEvent(instant uint64) {
	r.mu.Lock()
	cut := 0
	for cut < len(r.waiting) && r.waiting[cut].forTime <= instant {
		cut++
	}
	due := append([]waitEntry(nil), r.waiting[:cut]...)
	r.waiting = r.waiting[cut:]
	r.mu.Unlock()

	for _, e := range due {
		e.waker.Wake()
	}
}

// Future resolves once Now() reaches ForTime.
type Future struct {
	ForTime  uint64
	now      NowFunc
	registry *Registry
	timers   *timerqueue.Queue
}

// Absolute returns a Future that is Ready once now() >= forTime.
func Absolute(registry *Registry, timers *timerqueue.Queue, now NowFunc, forTime uint64) *Future {
	return &Future{ForTime: forTime, now: now, registry: registry, timers: timers}
}

// Relative returns a Future that is Ready once delta nanoseconds have
// elapsed from now.
func Relative(registry *Registry, timers *timerqueue.Queue, now NowFunc, delta uint64) *Future {
	return Absolute(registry, timers, now, now()+delta)
}

// Poll implements future.Future.
func (f *Future) Poll(w *future.Waker) (future.Poll, any, error) {
	t := f.now()
	if t >= f.ForTime {
		return future.Ready, t, nil
	}

	if !f.registry.register(f.ForTime, w) {
		f.timers.ScheduleAt(timerqueue.TimerEvent{Instant: f.ForTime, Cause: timerqueue.TimeoutFuture})
	}
	return future.Pending, nil, nil
}

var _ future.Future = (*Future)(nil)
