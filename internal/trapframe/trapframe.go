// Package trapframe defines the canonical saved execution context: the
// TrapFrame (§3). A TrapFrame is heap-allocated once per process and never
// moved once published; its address is kept in the owning hart's current-
// frame slot (internal/hart), the Go analogue of a dedicated supervisor
// scratch register.
package trapframe

import "rvkernel/internal/bitfield"

// RegCount is the number of general-purpose integer registers saved on
// trap entry (x0..x31; x0 is always zero but kept for index symmetry with
// the RISC-V ISA manual).
const RegCount = 32

// Syscall argument registers a0..a6 are x10..x16; the syscall number is
// a7 = x17, matching the RISC-V calling convention used by the ABI in §6.
const (
	regA0 = 10
	regA7 = 17
)

// StatusFlags is the TrapFrame's flags word (§3): in-interrupt,
// has-trapped-before, double-faulting, in-fault-trap, is-current.
type StatusFlags struct {
	InInterrupt     bool `bitfield:",1"`
	HasTrappedBefore bool `bitfield:",1"`
	DoubleFaulting  bool `bitfield:",1"`
	InFaultTrap     bool `bitfield:",1"`
	IsCurrent       bool `bitfield:",1"`
}

func (f StatusFlags) pack() uint64 {
	v, _ := bitfield.Pack(&f, &bitfield.Config{NumBits: 8})
	return v
}

// SatpValue is a root-page-table physical descriptor as it would be
// loaded into SATP: Sv39 mode bits OR'd with the root frame's physical
// page number.
type SatpValue uint64

const satpModeSv39 = uint64(8) << 60

// NewSatp builds an Sv39 SATP value for a root table at the given
// physical address.
func NewSatp(rootPhysAddr uint64) SatpValue {
	return SatpValue(satpModeSv39 | (rootPhysAddr >> 12))
}

// TrapFrame is the canonical execution context (§3). Owned by the Process
// it represents; pinned in memory.
type TrapFrame struct {
	Regs [RegCount]uint64
	PC   uint64

	HartID uint64
	Pid    uint64

	// InterruptStack points at the per-hart interrupt stack shared by
	// every process running on that hart.
	InterruptStack uintptr

	Flags StatusFlags

	// Satp is the root-page-table descriptor for the address space
	// currently selected when this frame is active.
	Satp SatpValue
	// KernelSatp is the saved kernel root-page-table descriptor,
	// restored on syscall entry before the syscall layer runs.
	KernelSatp SatpValue

	// SyscallNumber and the a0..a6 argument words are views over Regs,
	// exposed as methods below rather than duplicated fields.
}

// New returns a zeroed TrapFrame for the given hart and pid.
func New(hartID, pid uint64) *TrapFrame {
	return &TrapFrame{HartID: hartID, Pid: pid}
}

// SyscallNumber returns a7.
func (f *TrapFrame) SyscallNumber() uint64 { return f.Regs[regA7] }

// SetSyscallNumber sets a7.
func (f *TrapFrame) SetSyscallNumber(n uint64) { f.Regs[regA7] = n }

// Arg returns syscall argument ai (0 <= i <= 6), i.e. register a(i).
func (f *TrapFrame) Arg(i int) uint64 { return f.Regs[regA0+i] }

// SetArg sets syscall argument ai.
func (f *TrapFrame) SetArg(i int, v uint64) { f.Regs[regA0+i] = v }

// SetReturn writes the (a0, a1, a2) return triple: value-or-index plus the
// two-word error encoding described in §6/§7.
func (f *TrapFrame) SetReturn(value, a1, a2 uint64) {
	f.Regs[regA0] = value
	f.Regs[regA0+1] = a1
	f.Regs[regA0+2] = a2
}

// FlagsWord returns the packed status-flags byte, for logging/tests.
func (f *TrapFrame) FlagsWord() uint64 { return f.Flags.pack() }
