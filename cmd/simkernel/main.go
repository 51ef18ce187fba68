// Command simkernel boots the kernel core under the host simulation
// (§1.1 sim build mode): it wires the process table, scheduler, trap
// dispatcher, handle backends and syscall layer together over simulated
// SBI/PLIC collaborators, spawns an init process, and drives the
// scheduling loop for a bounded number of timer ticks. There is no real
// hardware entry in this build mode — the bootstrap assembly, linker
// script and device-tree parsing remain out of scope (§1) — so this is
// the host-side equivalent of main() in original_source's main.rs.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"rvkernel/internal/bootconfig"
	"rvkernel/internal/ctxswitch"
	"rvkernel/internal/extint"
	"rvkernel/internal/handle"
	"rvkernel/internal/hart"
	"rvkernel/internal/klog"
	"rvkernel/internal/plic"
	"rvkernel/internal/process"
	"rvkernel/internal/sbi"
	"rvkernel/internal/sv39"
	"rvkernel/internal/syscalls"
	"rvkernel/internal/timeout"
	"rvkernel/internal/timerqueue"
	"rvkernel/internal/trap"
	"rvkernel/internal/trapframe"
	"rvkernel/internal/vbuf"
)

const (
	logBackendID          = 0x01
	filesystemBackendID   = 0x02
	interruptBackendID    = 0x03
	processEggBackendID   = 0x04
	deviceBufferBackend   = 0x05
	maxScheduleIterations = 1000
)

func main() {
	configPath := flag.String("config", "", "path to a boot configuration YAML file (defaults built in)")
	verbose := flag.Bool("v", false, "enable debug-level logging")
	ticks := flag.Int("ticks", 20, "number of timer ticks to run before shutting down")
	flag.Parse()

	level := logrus.InfoLevel
	if *verbose {
		level = logrus.DebugLevel
	}
	klog.Init(level)
	log := klog.For("simkernel")

	cfg := bootconfig.Default()
	if *configPath != "" {
		loaded, err := bootconfig.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
	}

	k := boot(cfg, log)
	runUntilQuiescentOrTicks(k, *ticks, log)
	log.Infof("simulation complete, shutting down")
	k.harts[0].SBI.Shutdown()
}

// kernel bundles the process-wide collaborators a single simulated boot
// wires together, scoped to however many harts cfg names.
type kernel struct {
	cfg        bootconfig.Config
	table      *process.Table
	sched      *process.Scheduler
	arena      *sv39.FrameArena
	registry   *handle.Registry
	kernelSatp trapframe.SatpValue

	harts       map[uint64]*hart.Hart
	timers      map[uint64]*timerqueue.Queue
	switchers   map[uint64]*ctxswitch.Switcher
	dispatchers map[uint64]*trap.Dispatcher
	clock       uint64
}

// boot performs the sim-mode equivalent of original_source's main():
// stand up the root page table, process table/scheduler, handle
// backends, and one trap dispatcher per hart, then spawn an init
// process (§2 System Overview's boot sequence, adapted to the one
// address space this host process actually has).
func boot(cfg bootconfig.Config, log *klog.Logger) *kernel {
	table := process.NewTable()
	sched := process.NewScheduler(table)
	arena := sv39.NewFrameArena(cfg.MemoryBase)
	kernelSatp := trapframe.NewSatp(0)

	k := &kernel{
		cfg:         cfg,
		table:       table,
		sched:       sched,
		arena:       arena,
		kernelSatp:  kernelSatp,
		harts:       make(map[uint64]*hart.Hart),
		timers:      make(map[uint64]*timerqueue.Queue),
		switchers:   make(map[uint64]*ctxswitch.Switcher),
		dispatchers: make(map[uint64]*trap.Dispatcher),
	}

	var spawn handle.SpawnFunc = func(name string, satp trapframe.SatpValue, entryPC uint64) uint64 {
		return process.New(table, sched, kernelSatp, func(p *process.Process) {
			p.Name = name
			p.Frame.Satp = satp
			p.Frame.PC = entryPC
		})
	}

	registry := handle.NewRegistry()
	registry.RegisterConstructor(logBackendID, handle.NewLogOutputBackend)
	registry.RegisterConstructor(filesystemBackendID, handle.NewFilesystemBackend)
	registry.RegisterConstructor(processEggBackendID, func() handle.Backend {
		return handle.NewProcessEggBackend(arena, cfg.MemoryBase+cfg.MemorySize/2, sv39.GigaSize, spawn)
	})
	k.registry = registry

	for i := 0; i < cfg.HartCount; i++ {
		h := &hart.Hart{
			ID:        uint64(i),
			PLIC:      plic.NewSim(),
			SBI:       sbi.NewSim(nil),
			BootFrame: trapframe.New(uint64(i), 1),
		}
		k.harts[h.ID] = h

		extintDispatcher := extint.New(h.PLIC)
		if i == 0 {
			registry.RegisterConstructor(interruptBackendID, func() handle.Backend {
				return handle.NewInterruptBackend(extintDispatcher)
			})
			deviceRegistry := vbuf.New(sv39.New(arena), cfg.DeviceWindowBase)
			registry.RegisterConstructor(deviceBufferBackend, func() handle.Backend {
				return handle.NewDeviceBufferBackend(deviceRegistry)
			})
		}

		timers := timerqueue.New(h.SBI)
		k.timers[h.ID] = timers

		sw := ctxswitch.New(table, sched, h, timers, k.now)
		k.switchers[h.ID] = sw

		timeouts := timeout.NewRegistry()
		buffers := syscalls.NewHostBuffers()
		syscallHandler := syscalls.New(table, sw, registry, buffers, cfg.MemoryBase+cfg.MemorySize, kernelSatp)
		k.dispatchers[h.ID] = trap.New(table, sw, timers, timeouts, extintDispatcher, syscallHandler, h, kernelSatp, k.now)
	}

	initPid := process.New(table, sched, kernelSatp, func(p *process.Process) {
		p.IsSupervisor = true
		p.Name = "init"
		p.RootTable = sv39.New(arena)
	})
	log.Infof("spawned init process pid=%d", initPid)

	return k
}

func (k *kernel) now() uint64 { return k.clock }

// runUntilQuiescentOrTicks drives hart 0's scheduler for up to n timer
// ticks, stopping early once the process table is empty (§4.3/§4.7: the
// timer interrupt is what drives rescheduling, so this loop plays the
// part of repeated hardware timer interrupts firing).
func runUntilQuiescentOrTicks(k *kernel, n int, log *klog.Logger) {
	h := k.harts[0]
	sw := k.switchers[0]
	d := k.dispatchers[0]

	if err := sw.ScheduleAndSwitch(k.kernelSatp); err != nil {
		log.Fatal(fmt.Sprintf("initial schedule failed: %v", err))
	}
	sw.ScheduleNextSlice(1)

	for i := 0; i < n && i < maxScheduleIterations; i++ {
		if k.table.Count() == 0 {
			log.Infof("no processes left after %d ticks", i)
			break
		}
		k.clock += ctxswitch.NanosPerSlice
		if err := d.Dispatch(h.BootFrame, trap.CauseTimerInterrupt); err != nil {
			log.Fatal(fmt.Sprintf("timer dispatch failed: %v", err))
		}
		sw.ScheduleNextSlice(1)
		if cur := h.CurrentFrame(); cur != nil {
			log.Debugf("tick %d: running pid=%d", i, cur.Pid)
		}
	}
}
