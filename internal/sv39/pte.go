// Package sv39 implements the three-level Sv39 page-table engine: range
// mapping with automatic splitting, and translation query. Page-table
// frames are held in a FrameArena and addressed by FrameIndex rather than
// by Go pointer (§9 Design Notes: "Arena+index is a better fit than
// pointer ownership for page-table frames").
package sv39

import "rvkernel/internal/bitfield"

const (
	PageSize  = 1 << 12 // 4 KiB, level 0
	HugeSize  = 1 << 21 // 2 MiB, level 1
	GigaSize  = 1 << 30 // 1 GiB, level 2
	EntryCount = 512

	ppnShift = 10
)

// Flags is the low byte of a PTE: the permission and status bits shared by
// every valid entry, leaf or not.
type Flags struct {
	V bool `bitfield:",1"`
	R bool `bitfield:",1"`
	W bool `bitfield:",1"`
	X bool `bitfield:",1"`
	U bool `bitfield:",1"`
	G bool `bitfield:",1"`
	A bool `bitfield:",1"`
	D bool `bitfield:",1"`
}

// IsLeaf reports whether a PTE with these flags terminates translation
// (any of R/W/X set), as opposed to pointing at a child table.
func (f Flags) IsLeaf() bool { return f.R || f.W || f.X }

func (f Flags) pack() uint64 {
	// Pack never fails for a fixed 8-bit all-bool struct.
	v, _ := bitfield.Pack(&f, &bitfield.Config{NumBits: 8})
	return v
}

func unpackFlags(b uint64) Flags {
	var f Flags
	_ = bitfield.Unpack(&f, b&0xff)
	return f
}

// PTE is a single raw Sv39 page-table entry: Flags in the low byte, then
// two reserved-for-software bits, then a 44-bit physical page number.
type PTE uint64

// NewLeaf builds a leaf PTE mapping to the given physical address (must be
// page-aligned) with the given flags. V is forced on.
func NewLeaf(phys uint64, flags Flags) PTE {
	flags.V = true
	return PTE(flags.pack() | ((phys >> 12) << ppnShift))
}

// NewTable builds a non-leaf PTE pointing at the child table whose
// physical address is physTable (V set, R/W/X/U clear).
func NewTable(physTable uint64) PTE {
	f := Flags{V: true}
	return PTE(f.pack() | ((physTable >> 12) << ppnShift))
}

// Flags returns the decoded flag byte of the entry.
func (p PTE) Flags() Flags { return unpackFlags(uint64(p)) }

// PhysAddr returns the physical address this entry's PPN encodes (valid
// for both leaf entries and table pointers).
func (p PTE) PhysAddr() uint64 { return (uint64(p) >> ppnShift) << 12 }

// Valid reports whether V is set.
func (p PTE) Valid() bool { return p.Flags().V }
