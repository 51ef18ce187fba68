package sv39

import "rvkernel/internal/kerr"

// levelSize is the virtual-address span covered by a single entry at the
// given level (2 = root/gigapage, 1 = megapage, 0 = leaf page).
func levelSize(level int) uint64 {
	switch level {
	case 2:
		return GigaSize
	case 1:
		return HugeSize
	default:
		return PageSize
	}
}

func indexAt(level int, virt uint64) uint64 {
	shift := 12 + 9*uint(level)
	return (virt >> shift) & 0x1ff
}

// PageTable is an Sv39 address space rooted at a single arena frame.
type PageTable struct {
	arena *FrameArena
	root  FrameIndex

	// FenceCount counts architectural fences issued after a successful
	// Map (§4.1). In qemuriscv mode this would instead execute a real
	// Sfence.vma; sim mode has no TLB to invalidate, so it bumps this
	// counter so tests can assert the fence was actually taken.
	FenceCount uint64
}

// New allocates a fresh, empty (all-invalid) root table.
func New(arena *FrameArena) *PageTable {
	return &PageTable{arena: arena, root: arena.Alloc()}
}

// RootPhysAddr returns the physical address of the root frame, i.e. the
// value to load into SATP (shifted and OR'd with the Sv39 mode bits by
// the caller).
func (t *PageTable) RootPhysAddr() uint64 { return t.arena.PhysAddr(t.root) }

// IdentityMapGigapages writes 512 valid RWX gigapage entries into the
// root, each entry i mapping virtual [i*1GiB, (i+1)*1GiB) to the
// identical physical range. Used by early boot before the kernel switches
// to its real root (§4.1).
func (t *PageTable) IdentityMapGigapages() {
	frame := t.arena.Frame(t.root)
	flags := Flags{R: true, W: true, X: true}
	for i := 0; i < EntryCount; i++ {
		frame[i] = NewLeaf(uint64(i)*GigaSize, flags)
	}
}

// Map covers the virtual range [virtStart, virtStart+length) with the
// smallest set of entries consistent with the existing tree: any
// fully-aligned level whose region lies entirely inside the request
// becomes a leaf at that level; partially-covered leaves are split into
// the next finer table before descending (§4.1). physStart, virtStart and
// length must all be page-aligned; mapping out of the representable
// 39-bit range is a silent no-op, matching the original kernel.
func (t *PageTable) Map(physStart, virtStart, length uint64, flags Flags) *kerr.Error {
	if length == 0 {
		return nil
	}
	if virtStart%PageSize != 0 || physStart%PageSize != 0 || length%PageSize != 0 {
		return kerr.New("sv39", kerr.KindInvalidInput, "unaligned map request")
	}
	if virtStart+length > 1<<39 {
		return nil // out of range: quiet no-op, per spec §4.1
	}
	if err := t.mapLevel(2, t.root, virtStart, virtStart+length, virtStart, physStart, flags); err != nil {
		return err
	}
	t.Fence()
	return nil
}

// Fence invalidates TLB entries for this address space (§4.1: "after any
// modification, an architectural fence invalidates TLB entries"). Sim
// mode has no real TLB, so this just counts the call; Map calls it once
// per successful mapping.
func (t *PageTable) Fence() {
	t.FenceCount++
}

// mapLevel maps [segStart, segEnd) — a sub-range of the original request
// — into the table frame identified by idx at the given level. base is
// the original request's virtStart and physBase its physStart, used to
// compute each leaf's physical address as an offset from the request.
func (t *PageTable) mapLevel(level int, idx FrameIndex, segStart, segEnd, base, physBase uint64, flags Flags) *kerr.Error {
	size := levelSize(level)
	frame := t.arena.Frame(idx)

	for cur := segStart; cur < segEnd; {
		i := indexAt(level, cur)
		entryBase := cur &^ (size - 1)
		entryEnd := entryBase + size

		lo := max64(entryBase, segStart)
		hi := min64(entryEnd, segEnd)

		if lo == entryBase && hi == entryEnd {
			phys := physBase + (entryBase - base)
			frame[i] = NewLeaf(phys, flags)
		} else if level == 0 {
			// A page-aligned, page-length request can never produce a
			// partial leaf at level 0; reaching here means the caller
			// passed an inconsistent range.
			return kerr.New("sv39", kerr.KindInvalidInput, "partial page-level mapping")
		} else {
			childIdx, err := t.childFor(frame, i, size, entryBase, flags)
			if err != nil {
				return err
			}
			if err := t.mapLevel(level-1, childIdx, lo, hi, base, physBase, flags); err != nil {
				return err
			}
		}

		cur = entryEnd
	}
	return nil
}

// childFor returns the child table frame for entry i, allocating one if
// absent and splitting it first if it is currently a leaf (inheriting the
// leaf's flags and physical base across every sub-entry so translation is
// preserved for every address the leaf used to cover — §8 invariant 3).
func (t *PageTable) childFor(frame *[EntryCount]PTE, i uint64, parentSize, entryBase uint64, newFlags Flags) (FrameIndex, *kerr.Error) {
	pte := frame[i]

	if pte.Valid() && pte.Flags().IsLeaf() {
		childIdx := t.arena.Alloc()
		t.splitInto(childIdx, pte.PhysAddr(), pte.Flags(), parentSize)
		frame[i] = NewTable(t.arena.PhysAddr(childIdx))
		return childIdx, nil
	}

	if pte.Valid() {
		childIdx, ok := t.arena.IndexForPhys(pte.PhysAddr())
		if !ok {
			return 0, errNotAnArenaFrame(pte.PhysAddr())
		}
		return childIdx, nil
	}

	childIdx := t.arena.Alloc()
	frame[i] = NewTable(t.arena.PhysAddr(childIdx))
	return childIdx, nil
}

// splitInto populates a freshly allocated child frame with 512 leaf
// entries that together cover the same physical range the split parent
// leaf covered, at the next finer granularity.
func (t *PageTable) splitInto(childIdx FrameIndex, parentPhys uint64, flags Flags, parentSize uint64) {
	child := t.arena.Frame(childIdx)
	childSize := parentSize / EntryCount
	for i := 0; i < EntryCount; i++ {
		child[i] = NewLeaf(parentPhys+uint64(i)*childSize, flags)
	}
}

// Translation is the result of a successful Query.
type Translation struct {
	PhysAddr uint64
	Flags    Flags
}

// Query walks the tree for virt and returns the translating leaf and the
// physical address of the exact byte (including the in-page offset), or
// ok=false if the walk ends at a non-V entry (§4.1's Invalid result).
func (t *PageTable) Query(virt uint64) (Translation, bool) {
	idx := t.root
	for level := 2; level >= 0; level-- {
		frame := t.arena.Frame(idx)
		i := indexAt(level, virt)
		pte := frame[i]
		if !pte.Valid() {
			return Translation{}, false
		}
		if pte.Flags().IsLeaf() {
			offset := virt & (levelSize(level) - 1)
			return Translation{PhysAddr: pte.PhysAddr() + offset, Flags: pte.Flags()}, true
		}
		childIdx, ok := t.arena.IndexForPhys(pte.PhysAddr())
		if !ok {
			return Translation{}, false
		}
		idx = childIdx
	}
	return Translation{}, false
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
