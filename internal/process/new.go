package process

import (
	"rvkernel/internal/handle"
	"rvkernel/internal/trapframe"
)

// TaskStackSize is the size of a supervisor process's privately owned
// kernel stack (§3), matching original_source's TASK_STACK_SIZE.
const TaskStackSize = 4096 * 8

// BootHartIDPlaceholder is written into a freshly constructed process's
// trap frame before it has ever actually been scheduled onto a hart
// (§9: a real hart id is only meaningful once the process is switched
// to). It's an obviously-wrong sentinel a reader can spot in logs.
const BootHartIDPlaceholder = 0xBADC0DE

// New creates a process: it allocates a pid, builds a zeroed trap frame
// for it, runs constructor to fill in domain-specific fields (is it
// supervisor, what's its entry PC/address space), then finalizes the
// frame's pid/satp/hart-id fields, publishes it into table, and enrolls
// it with sched — mirroring original_source's new_process, including its
// exact sequencing (constructor runs strictly before the frame's
// pid/satp/hartid are finalized, so constructor is free to set Satp to
// an arbitrary address space and have KernelSatp/hartid filled in after).
func New(table *Table, sched *Scheduler, kernelSatp trapframe.SatpValue, constructor func(*Process)) uint64 {
	pid := table.AllocatePid()

	proc := &Process{
		state:   Pending,
		Handles: handle.NewTable(),
		Frame:   trapframe.New(0, 0),
	}

	constructor(proc)

	proc.Frame.Pid = pid
	proc.Frame.KernelSatp = kernelSatp
	if proc.IsSupervisor {
		proc.Frame.Satp = kernelSatp
	}
	proc.Frame.HartID = BootHartIDPlaceholder

	table.Publish(pid, proc)
	sched.Enroll(pid)
	return pid
}

// Delete removes pid from the table. The schedule queue is left
// untouched; Scheduler.Schedule prunes the now-dead entry lazily on its
// next scan (§5 Cancellation).
func Delete(table *Table, pid uint64) {
	if proc, ok := table.Get(pid); ok {
		proc.Handles.CloseAll()
	}
	table.Delete(pid)
}
