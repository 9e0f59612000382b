package vm

import "rvkernel/mem"

const satpModeSV39 = 8

// / PageTable owns the root page number of an SV39 three-level radix tree
// / and the FrameHandles backing every table page it allocated (root plus
// / intermediate levels). Leaf data pages belong to the owning
// / MemorySegment, not to the PageTable itself.
type PageTable struct {
	rootPPN PhysPageNum
	frames  []*mem.FrameHandle
}

/// NewPageTable allocates a fresh, empty root table.
func NewPageTable(fa *mem.FrameAllocator) *PageTable {
	root := fa.Alloc()
	return &PageTable{rootPPN: FromFrame(root.PPN()), frames: []*mem.FrameHandle{root}}
}

/// FromSatp builds a read-only view over an address space given only its
/// satp value, used when the kernel must translate a *different* address
/// space's user pointers (e.g. a syscall argument) without activating it.
func FromSatp(satp uint64) *PageTable {
	return &PageTable{rootPPN: PhysPageNum(satp & ((1 << 44) - 1))}
}

func tableAt(ppn PhysPageNum) *[512]PageTableEntry {
	bytes := mem.PageBytes(ppn.Frame())
	return (*[512]PageTableEntry)(pointerCast(bytes))
}

// findPTE walks the tree for vpn, allocating intermediate levels along
// the way when create is true. It returns nil if not found and !create,
// or if found would require allocating and !create.
func (pt *PageTable) findPTE(vpn VirtPageNum, create bool, fa *mem.FrameAllocator) *PageTableEntry {
	idx := vpn.Indexes()
	ppn := pt.rootPPN
	var result *PageTableEntry
	for level := 0; level < PPNLevel; level++ {
		table := tableAt(ppn)
		pte := &table[idx[level]]
		if level == PPNLevel-1 {
			result = pte
			break
		}
		if !pte.Valid() {
			if !create {
				return nil
			}
			frame := fa.Alloc()
			*pte = NewPTE(FromFrame(frame.PPN()), PTE_V)
			pt.frames = append(pt.frames, frame)
		}
		ppn = pte.PPN()
	}
	return result
}

/// Map installs a mapping for vpn to ppn with the given permission flags
/// (the caller supplies PTE_V; Map adds it if missing). Panics if vpn is
/// already mapped: every Map call site in this kernel first checks
/// whether a segment already owns the page, so a collision is a bug.
func (pt *PageTable) Map(vpn VirtPageNum, ppn PhysPageNum, flags PTEFlags, fa *mem.FrameAllocator) {
	pte := pt.findPTE(vpn, true, fa)
	if pte.Valid() {
		panic("vm: remap of already-mapped page")
	}
	*pte = NewPTE(ppn, flags|PTE_V)
}

/// Unmap removes the mapping for vpn. Panics if vpn was not mapped.
func (pt *PageTable) Unmap(vpn VirtPageNum) {
	pte := pt.findPTE(vpn, false, nil)
	if pte == nil || !pte.Valid() {
		panic("vm: unmap of unmapped page")
	}
	*pte = PageTableEntry{}
}

/// Translate looks up vpn without allocating, returning (entry, true) if
/// a valid mapping exists.
func (pt *PageTable) Translate(vpn VirtPageNum) (PageTableEntry, bool) {
	pte := pt.findPTE(vpn, false, nil)
	if pte == nil || !pte.Valid() {
		return PageTableEntry{}, false
	}
	return *pte, true
}

/// TranslateVA resolves a full virtual address to its physical address,
/// honoring the in-page offset.
func (pt *PageTable) TranslateVA(va VirtAddr) (PhysAddr, bool) {
	pte, ok := pt.Translate(va.Floor())
	if !ok {
		return 0, false
	}
	return PhysAddr(uint64(pte.PPN())<<PageBits | va.PageOffset()), true
}

/// Satp computes the SATP CSR value selecting this table: SV39 mode (8)
/// in the top 4 bits, root PPN in the low 44.
func (pt *PageTable) Satp() uint64 {
	return uint64(satpModeSV39)<<60 | uint64(pt.rootPPN)
}

/// RootPPN exposes the root page number, e.g. for diagnostics.
func (pt *PageTable) RootPPN() PhysPageNum { return pt.rootPPN }
