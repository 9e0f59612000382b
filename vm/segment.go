package vm

import "rvkernel/mem"

// / MapType selects how a MemorySegment's pages get their physical
// / backing: Identical pins PPN == VPN (used only for kernel mappings
// / that already know their physical layout); Framed allocates one
// / FrameHandle per page and owns it for the segment's lifetime.
type MapType int

const (
	Identical MapType = iota
	Framed
)

// / Permission is the segment-level access policy, independent of the
// / PTE_V bit every mapped page also carries.
type Permission uint8

const (
	PermR Permission = 1 << 1 // aligned with PTE_R's bit position
	PermW Permission = 1 << 2
	PermX Permission = 1 << 3
	PermU Permission = 1 << 4
)

func (p Permission) pteFlags() PTEFlags { return PTEFlags(p) }

// / MemorySegment is a contiguous, non-overlapping half-open VPN range
// / mapped with one MapType and one Permission for its whole extent. An
// / AddressSpace owns an ordered list of these; invariant (a) of the
// / address-space data model is enforced by AddressSpace.AddSegment.
type MemorySegment struct {
	Range      VPNRange
	MapType    MapType
	Perm       Permission
	dataFrames map[VirtPageNum]*mem.FrameHandle // only for Framed segments
}

/// NewSegment builds a segment over [start, end) with the given backing
/// discipline and permission set.
func NewSegment(start, end VirtPageNum, mt MapType, perm Permission) *MemorySegment {
	s := &MemorySegment{Range: VPNRange{Start: start, End: end}, MapType: mt, Perm: perm}
	if mt == Framed {
		s.dataFrames = make(map[VirtPageNum]*mem.FrameHandle)
	}
	return s
}

// mapPage installs vpn's mapping in pt per this segment's discipline.
func (s *MemorySegment) mapPage(pt *PageTable, vpn VirtPageNum, fa *mem.FrameAllocator) {
	var ppn PhysPageNum
	switch s.MapType {
	case Identical:
		ppn = PhysPageNum(vpn)
	case Framed:
		frame := fa.Alloc()
		s.dataFrames[vpn] = frame
		ppn = FromFrame(frame.PPN())
	}
	pt.Map(vpn, ppn, s.Perm.pteFlags(), fa)
}

// unmapPage tears down vpn's mapping and, for Framed segments, frees the
// backing frame.
func (s *MemorySegment) unmapPage(pt *PageTable, vpn VirtPageNum) {
	if s.MapType == Framed {
		frame, ok := s.dataFrames[vpn]
		if !ok {
			panic("vm: unmap of page the segment never mapped")
		}
		frame.Free()
		delete(s.dataFrames, vpn)
	}
	pt.Unmap(vpn)
}

/// Map installs every page of the segment.
func (s *MemorySegment) Map(pt *PageTable, fa *mem.FrameAllocator) {
	s.Range.Each(func(vpn VirtPageNum) { s.mapPage(pt, vpn, fa) })
}

/// Unmap tears down every page of the segment.
func (s *MemorySegment) Unmap(pt *PageTable) {
	s.Range.Each(func(vpn VirtPageNum) { s.unmapPage(pt, vpn) })
}

/// FramePPN returns the physical page backing vpn in a Framed segment.
func (s *MemorySegment) FramePPN(vpn VirtPageNum) (PhysPageNum, bool) {
	f, ok := s.dataFrames[vpn]
	if !ok {
		return 0, false
	}
	return FromFrame(f.PPN()), true
}

// / CopyData writes data into the segment's frames starting at its first
// / page, one page at a time, for ELF-load and fork-time copying. Only
// / valid for Framed segments; len(data) may exceed one page.
func (s *MemorySegment) CopyData(data []byte) {
	if s.MapType != Framed {
		panic("vm: CopyData on non-framed segment")
	}
	vpn := s.Range.Start
	off := 0
	for off < len(data) {
		frame, ok := s.dataFrames[vpn]
		if !ok {
			panic("vm: CopyData ran past the segment's mapped pages")
		}
		n := copy(frame.Bytes()[:], data[off:])
		off += n
		vpn++
	}
}
