// Package ctxswitch is the context switcher (§4.4): given a picked pid,
// it makes that process's trap frame the hart's current frame and marks
// it Running; when the scheduler has nothing runnable, it falls back to
// a per-hart idle process. Grounded on original_source's
// context_switch.rs (context_switch/schedule_and_switch) and process.rs's
// idle()/idle_entry_point.
package ctxswitch

import (
	"fmt"

	"rvkernel/internal/hart"
	"rvkernel/internal/kerr"
	"rvkernel/internal/klog"
	"rvkernel/internal/process"
	"rvkernel/internal/timerqueue"
	"rvkernel/internal/trapframe"
)

// NanosPerSlice is the length of one scheduling slice in nanoseconds,
// matching original_source's schedule_next_slice(1 slice = 1_000_000 ns).
const NanosPerSlice = 1_000_000

// NowFunc returns the current time in nanoseconds, for programming the
// timer queue's next ContextSwitch event.
type NowFunc func() uint64

// Switcher drives one hart's scheduling loop.
type Switcher struct {
	table  *process.Table
	sched  *process.Scheduler
	hart   *hart.Hart
	timers *timerqueue.Queue
	now    NowFunc
	log    *klog.Logger
}

// New returns a Switcher for hart h, scheduling over table/sched and
// programming timeouts into timers using now as the clock source.
func New(table *process.Table, sched *process.Scheduler, h *hart.Hart, timers *timerqueue.Queue, now NowFunc) *Switcher {
	return &Switcher{
		table:  table,
		sched:  sched,
		hart:   h,
		timers: timers,
		now:    now,
		log:    klog.For("ctxswitch").WithHart(h.ID),
	}
}

// ScheduleNextSlice arms a ContextSwitch timer event `slices` scheduling
// slices from now.
func (s *Switcher) ScheduleNextSlice(slices uint64) {
	s.timers.ScheduleAt(timerqueue.TimerEvent{
		Instant: s.now() + slices*NanosPerSlice,
		Cause:   timerqueue.ContextSwitch,
	})
	s.timers.ScheduleNext()
}

// SwitchTo makes pid's trap frame the hart's current frame and marks it
// Running. Per §4.4, any lock the caller is holding on the process
// record must be released before entry; this function itself takes none
// and holds none across the switch, matching that requirement — Go has
// no destructor-based force-unlock, so the discipline is simply: do not
// wrap this call in a held lock.
func (s *Switcher) SwitchTo(pid uint64) *kerr.Error {
	proc, ok := s.table.Get(pid)
	if !ok {
		return kerr.New("ctxswitch", kerr.KindFatal, fmt.Sprintf("process %d vanished between scheduling and switch", pid))
	}

	proc.SetState(process.Running)
	proc.Frame.HartID = s.hart.ID
	proc.Frame.InterruptStack = s.hart.BootFrame.InterruptStack
	s.hart.SetCurrentFrame(proc.Frame)
	return nil
}

// ScheduleAndSwitch asks the scheduler for the next runnable pid and
// switches to it; if nothing is Pending, it falls back to the hart's
// idle process (creating one on first use), matching
// schedule_and_switch/idle() in original_source.
func (s *Switcher) ScheduleAndSwitch(kernelSatp trapframe.SatpValue) *kerr.Error {
	pid, ok := s.sched.Schedule()
	if ok {
		return s.SwitchTo(pid)
	}

	if s.sched.Len() == 0 {
		return kerr.New("ctxswitch", kerr.KindFatal, "no processes alive, nothing left to schedule")
	}

	s.log.Warnf("all processes have yielded, scheduling idle")
	idlePid := s.ensureIdleProcess(kernelSatp)
	if proc, ok := s.table.Get(idlePid); ok {
		proc.SetState(process.Pending)
	}
	s.ScheduleNextSlice(1)
	return s.SwitchTo(idlePid)
}

// ensureIdleProcess returns this hart's cached idle process, creating a
// fresh supervisor process for it on first use (original_source caches
// the idle pid per-hart via hart-local metadata).
func (s *Switcher) ensureIdleProcess(kernelSatp trapframe.SatpValue) uint64 {
	if pid := s.hart.IdleProcessPid.Load(); pid != 0 {
		if _, ok := s.table.Get(pid); ok {
			return pid
		}
	}

	pid := process.New(s.table, s.sched, kernelSatp, func(p *process.Process) {
		p.IsSupervisor = true
		p.Name = fmt.Sprintf("Idle process for hart %d", s.hart.ID)
	})
	s.hart.IdleProcessPid.Store(pid)
	return pid
}
