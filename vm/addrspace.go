package vm

import (
	"bytes"
	"debug/elf"
	"fmt"

	"rvkernel/mem"
)

// / TRAMPOLINE is the highest virtual page in every address space,
// / identity-R+X-mapped to the same physical page everywhere so that code
// / running there survives the SATP switch across a trap boundary.
const TRAMPOLINE = VirtAddr((1<<VAWidth - 1) - PageSize + 1)

// / AddressSpace owns one PageTable plus the ordered, non-overlapping
// / list of MemorySegments mapped through it, plus a shared trampoline
// / mapping. Every in-scope invariant from the data model (no overlap,
// / one live frame per Framed VPN, trampoline present) is maintained by
// / the methods below; nothing else in the kernel pokes the page table
// / directly.
type AddressSpace struct {
	pt             *PageTable
	segments       []*MemorySegment
	fa             *mem.FrameAllocator
	trampolinePPN  PhysPageNum // shared across every AddressSpace
	trampolineHeld bool
}

/// NewBare allocates an empty address space (just a root table, no
/// segments) sharing the given trampoline frame.
func NewBare(fa *mem.FrameAllocator, trampolinePPN PhysPageNum) *AddressSpace {
	as := &AddressSpace{pt: NewPageTable(fa), fa: fa, trampolinePPN: trampolinePPN}
	as.mapTrampoline()
	return as
}

func (as *AddressSpace) mapTrampoline() {
	as.pt.Map(TRAMPOLINE.VPN(), as.trampolinePPN, PTE_R|PTE_X, as.fa)
	as.trampolineHeld = true
}

/// AddSegment inserts seg after checking it does not overlap any
/// existing segment (invariant a), maps its pages, and optionally copies
/// initial data into it (nil data is a no-op).
func (as *AddressSpace) AddSegment(seg *MemorySegment, data []byte) {
	for _, existing := range as.segments {
		if seg.Range.Overlaps(existing.Range) {
			panic("vm: overlapping memory segments")
		}
	}
	seg.Map(as.pt, as.fa)
	if data != nil {
		seg.CopyData(data)
	}
	as.segments = append(as.segments, seg)
}

/// RemoveSegmentWithStart drops and unmaps the segment starting at vpn,
/// if one exists.
func (as *AddressSpace) RemoveSegmentWithStart(vpn VirtPageNum) {
	for i, seg := range as.segments {
		if seg.Range.Start == vpn {
			seg.Unmap(as.pt)
			as.segments = append(as.segments[:i], as.segments[i+1:]...)
			return
		}
	}
}

/// Translate resolves a virtual page number through this space's table.
func (as *AddressSpace) Translate(vpn VirtPageNum) (PageTableEntry, bool) {
	return as.pt.Translate(vpn)
}

/// TranslateVA resolves a full byte address.
func (as *AddressSpace) TranslateVA(va VirtAddr) (PhysAddr, bool) {
	return as.pt.TranslateVA(va)
}

/// Satp computes this space's SATP register value.
func (as *AddressSpace) Satp() uint64 { return as.pt.Satp() }

// / Activate writes this space's SATP value through writeSatp and fences
// / the TLB through sfenceVMA. Both are injected because the CSR write
// / and sfence.vma instruction are architecture assembly (Non-goals);
// / this method only supplies the value and the call order.
func (as *AddressSpace) Activate(writeSatp func(uint64), sfenceVMA func()) {
	writeSatp(as.Satp())
	sfenceVMA()
}

/// PageTable exposes the underlying table, e.g. for UserBuffer.
func (as *AddressSpace) PageTable() *PageTable { return as.pt }

// / Destroy unmaps and frees every segment's frames, leaving only the
// / shared trampoline mapping behind (the trampoline frame is never
// / freed — it outlives every address space that shares it). Called
// / when a process's last thread exits (spec §4.7's "recycle data
// / pages").
func (as *AddressSpace) Destroy() {
	for _, seg := range as.segments {
		seg.Unmap(as.pt)
	}
	as.segments = nil
}

// NewKernelSpace identity-maps the kernel's text/rodata/data/bss, the
// physical-memory tail [freeStart, memEnd), and every MMIO region, each
// with the permissions the caller supplies. The board layout itself
// (section boundaries, MMIO addresses) is an external collaborator's
// concern (spec Non-goals); this takes it as already-resolved ranges.
type KernelLayout struct {
	Text, Rodata, Data, BSS VPNRange
	PhysTail                VPNRange // [freeStart, memEnd) physical tail, identity mapped
	MMIO                    []VPNRange
}

/// NewKernelSpace builds the one address space the kernel itself runs
/// in: every region identity-mapped (PPN == VPN), matching the spec's
/// "kernel space construction" algorithm exactly.
func NewKernelSpace(fa *mem.FrameAllocator, trampolinePPN PhysPageNum, layout KernelLayout) *AddressSpace {
	as := NewBare(fa, trampolinePPN)
	as.AddSegment(NewSegment(layout.Text.Start, layout.Text.End, Identical, PermR|PermX), nil)
	as.AddSegment(NewSegment(layout.Rodata.Start, layout.Rodata.End, Identical, PermR), nil)
	as.AddSegment(NewSegment(layout.Data.Start, layout.Data.End, Identical, PermR|PermW), nil)
	as.AddSegment(NewSegment(layout.BSS.Start, layout.BSS.End, Identical, PermR|PermW), nil)
	as.AddSegment(NewSegment(layout.PhysTail.Start, layout.PhysTail.End, Identical, PermR|PermW), nil)
	for _, mmio := range layout.MMIO {
		as.AddSegment(NewSegment(mmio.Start, mmio.End, Identical, PermR|PermW), nil)
	}
	return as
}

// elfPermission derives a segment's Permission from an ELF program
// header's flags, always adding PermU (user-mode access).
func elfPermission(flags elf.ProgFlag) Permission {
	perm := PermU
	if flags&elf.PF_R != 0 {
		perm |= PermR
	}
	if flags&elf.PF_W != 0 {
		perm |= PermW
	}
	if flags&elf.PF_X != 0 {
		perm |= PermX
	}
	return perm
}

// / FromELF builds a fresh user address space from an ELF image: checks
// / the magic, maps each PT_LOAD segment as Framed with derived
// / permissions, copies its file bytes in, and computes the user stack
// / base one guard page above the highest loaded VPN. The stack itself is
// / not mapped here (each thread's TaskUserResource maps its own slot from
// / that base), so userStackPages is unused. Returns the space, the base
// / VA of the user stack, and the entry point.
func FromELF(fa *mem.FrameAllocator, trampolinePPN PhysPageNum, image []byte, userStackPages int) (as *AddressSpace, userStackBase VirtAddr, entry VirtAddr, err error) {
	if len(image) < 4 || !bytes.Equal(image[:4], []byte{0x7F, 'E', 'L', 'F'}) {
		return nil, 0, 0, fmt.Errorf("vm: bad ELF magic")
	}
	f, e := elf.NewFile(bytes.NewReader(image))
	if e != nil {
		return nil, 0, 0, fmt.Errorf("vm: parse ELF: %w", e)
	}
	as = NewBare(fa, trampolinePPN)
	var maxEnd VirtPageNum
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		startVA := VirtAddr(prog.Vaddr)
		endVA := VirtAddr(prog.Vaddr + prog.Memsz)
		start := startVA.Floor()
		end := endVA.Ceil()
		seg := NewSegment(start, end, Framed, elfPermission(prog.Flags))
		data := make([]byte, prog.Filesz)
		if _, e := prog.ReadAt(data, 0); e != nil && prog.Filesz > 0 {
			return nil, 0, 0, fmt.Errorf("vm: read segment: %w", e)
		}
		as.AddSegment(seg, data)
		if end > maxEnd {
			maxEnd = end
		}
	}
	userStackBase = (maxEnd + 1).Addr() // one guard page past the last loaded VPN
	return as, userStackBase, VirtAddr(f.Entry), nil
}

// / Fork clones this address space for a child process: a new empty
// / space sharing the trampoline, with a same-range Framed segment per
// / existing segment and the backing page bytes copied (not shared) —
// / this kernel does not implement copy-on-write (Non-goals).
func (as *AddressSpace) Fork() *AddressSpace {
	child := NewBare(as.fa, as.trampolinePPN)
	for _, seg := range as.segments {
		childSeg := NewSegment(seg.Range.Start, seg.Range.End, seg.MapType, seg.Perm)
		child.segments = append(child.segments, childSeg)
		seg.Range.Each(func(vpn VirtPageNum) {
			switch seg.MapType {
			case Identical:
				child.pt.Map(vpn, PhysPageNum(vpn), seg.Perm.pteFlags(), child.fa)
			case Framed:
				frame := as.fa.Alloc()
				childSeg.dataFrames[vpn] = frame
				child.pt.Map(vpn, FromFrame(frame.PPN()), seg.Perm.pteFlags(), child.fa)
				parentPPN, _ := seg.FramePPN(vpn)
				copy(frame.Bytes()[:], mem.PageBytes(parentPPN.Frame())[:])
			}
		})
	}
	return child
}
