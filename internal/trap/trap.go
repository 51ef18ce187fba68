// Package trap is the trap dispatcher (§4.2): classifies a trap by
// cause and routes it to the scheduler, timer queue, external-interrupt
// dispatcher, or syscall layer. In qemuriscv mode the register-save
// trampoline ahead of Dispatch is real assembly (out of scope); in sim
// mode the trampoline is just the caller constructing a *TrapFrame, so
// Dispatch itself is the whole of what's portable.
package trap

import (
	"fmt"

	"rvkernel/internal/ctxswitch"
	"rvkernel/internal/extint"
	"rvkernel/internal/hart"
	"rvkernel/internal/kerr"
	"rvkernel/internal/klog"
	"rvkernel/internal/process"
	"rvkernel/internal/timeout"
	"rvkernel/internal/timerqueue"
	"rvkernel/internal/trapframe"
)

// Cause classifies a trap (§4.2), the Go rendition of RISC-V's scause.
type Cause int

const (
	CauseException Cause = iota
	CauseTimerInterrupt
	CauseExternalInterrupt
	CauseSupervisorSoftwareInterrupt
	CauseEnvironmentCallFromU
)

// ecallInstructionWidth is the width, in bytes, of the RISC-V ecall
// instruction — the saved PC must be advanced past it before syscall
// arguments are consumed, or the process would re-issue the same call
// forever on return.
const ecallInstructionWidth = 4

// SyscallHandler dispatches a trap frame already parked at the syscall
// ABI (a7 = number, a0..a6 = args) and writes its result back into the
// frame via SetReturn, driving any scheduling the syscall itself
// requires (Exit, Yield).
type SyscallHandler interface {
	Handle(frame *trapframe.TrapFrame)
}

// CancelingSyscallHandler is an optional capability a SyscallHandler may
// implement: it tracks asynchronous work in flight per pid (§4.5's
// executor) and needs a chance to tear it down whenever a process is
// deleted out from under it, so no completion outlives the process
// (§4.5 Cancellation).
type CancelingSyscallHandler interface {
	CancelPending(pid uint64)
}

// Dispatcher routes one hart's traps (§4.2).
type Dispatcher struct {
	table      *process.Table
	switcher   *ctxswitch.Switcher
	timers     *timerqueue.Queue
	timeouts   *timeout.Registry
	extint     *extint.Dispatcher
	syscalls   SyscallHandler
	hart       *hart.Hart
	kernelSatp trapframe.SatpValue
	now        func() uint64
	log        *klog.Logger
}

// New returns a Dispatcher for one hart's trap stream.
func New(
	table *process.Table,
	switcher *ctxswitch.Switcher,
	timers *timerqueue.Queue,
	timeouts *timeout.Registry,
	extintDispatcher *extint.Dispatcher,
	syscalls SyscallHandler,
	h *hart.Hart,
	kernelSatp trapframe.SatpValue,
	now func() uint64,
) *Dispatcher {
	return &Dispatcher{
		table:      table,
		switcher:   switcher,
		timers:     timers,
		timeouts:   timeouts,
		extint:     extintDispatcher,
		syscalls:   syscalls,
		hart:       h,
		kernelSatp: kernelSatp,
		now:        now,
		log:        klog.For("trap").WithHart(h.ID),
	}
}

// Dispatch handles one trap on frame, classified as cause. Re-entrancy:
// a trap arriving while frame.Flags.InInterrupt is already set means a
// trap fired inside the handler itself, which this kernel treats as a
// double fault rather than a nested user trap (§4.2).
func (d *Dispatcher) Dispatch(frame *trapframe.TrapFrame, cause Cause) *kerr.Error {
	if frame.Flags.InInterrupt {
		return d.doubleFault(frame, "trap re-entered while already handling a trap")
	}

	d.hart.InterruptMask.Lock()
	defer d.hart.InterruptMask.Unlock()

	frame.Flags.InInterrupt = true
	frame.Flags.HasTrappedBefore = true
	defer func() { frame.Flags.InInterrupt = false }()

	switch cause {
	case CauseException:
		return d.handleException(frame)
	case CauseTimerInterrupt:
		return d.handleTimerInterrupt()
	case CauseExternalInterrupt:
		d.extint.Dispatch()
		return nil
	case CauseSupervisorSoftwareInterrupt:
		return d.handleSupervisorEscape(frame)
	case CauseEnvironmentCallFromU:
		return d.handleEcall(frame)
	default:
		return d.doubleFault(frame, fmt.Sprintf("unknown trap cause %d", cause))
	}
}

// handleException implements §4.2's exception-kind branch: a fault in
// kernel/supervisor context is unrecoverable; a fault in a user process
// just costs that process its life.
func (d *Dispatcher) handleException(frame *trapframe.TrapFrame) *kerr.Error {
	proc, ok := d.table.Get(frame.Pid)
	if !ok || proc.IsSupervisor {
		return d.doubleFault(frame, fmt.Sprintf("exception in kernel/supervisor context (pid %d)", frame.Pid))
	}

	d.log.WithPid(frame.Pid).Warnf("exception in user process, deleting it")
	if c, ok := d.syscalls.(CancelingSyscallHandler); ok {
		c.CancelPending(frame.Pid)
	}
	process.Delete(d.table, frame.Pid)
	return d.switcher.ScheduleAndSwitch(d.kernelSatp)
}

// handleTimerInterrupt implements §4.2/§4.7: pop every due event, act on
// each by cause, then re-arm the SBI timer for the new minimum.
func (d *Dispatcher) handleTimerInterrupt() *kerr.Error {
	due := d.timers.PopDue(d.now())
	for _, e := range due {
		switch e.Cause {
		case timerqueue.ContextSwitch:
			if err := d.switcher.ScheduleAndSwitch(d.kernelSatp); err != nil {
				return err
			}
		case timerqueue.TimeoutFuture:
			d.timeouts.OnTimerEvent(e.Instant)
		}
	}
	d.timers.ScheduleNext()
	return nil
}

// handleSupervisorEscape treats a supervisor software interrupt as a
// syscall-on-self: the frame is already parked at the syscall ABI by the
// supervisor code that raised it (e.g. a process's return address
// issuing Exit on normal return), so it's forwarded straight to the
// syscall layer without the user-mode PC/address-space fixup.
func (d *Dispatcher) handleSupervisorEscape(frame *trapframe.TrapFrame) *kerr.Error {
	d.syscalls.Handle(frame)
	return nil
}

// handleEcall implements §4.2's environment-call branch: advance the
// saved PC past the ecall instruction, switch to the kernel address
// space, and enter the syscall layer.
func (d *Dispatcher) handleEcall(frame *trapframe.TrapFrame) *kerr.Error {
	frame.PC += ecallInstructionWidth
	frame.Satp = d.kernelSatp
	d.syscalls.Handle(frame)
	return nil
}

func (d *Dispatcher) doubleFault(frame *trapframe.TrapFrame, reason string) *kerr.Error {
	frame.Flags.DoubleFaulting = true
	d.hart.MarkPanicked()
	d.log.Errorf("double fault: %s", reason)
	return kerr.New("trap", kerr.KindFatal, reason)
}
