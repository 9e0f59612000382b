// Package vm implements the SV39 three-level page table and the
// address-space abstraction built on top of it: typed addresses, memory
// segments, ELF loading, fork, and the UserBuffer helper that lets kernel
// code read and write a user virtual range that may straddle pages with
// unrelated physical backing.
package vm

import "rvkernel/mem"

// / VAWidth and PAWidth are the SV39 address widths: 39-bit virtual
// / addresses, 56-bit physical addresses (44-bit PPN + 12-bit offset).
const (
	VAWidth  = 39
	PAWidth  = 56
	PageBits = 12
	PageSize = 1 << PageBits
	// PPNBits is the width of one page-table index: 512 entries/level.
	PPNBits  = 9
	PPNLevel = 3
)

// / PhysAddr is a physical byte address.
type PhysAddr uint64

// / PhysPageNum is a physical page number (PhysAddr >> PageBits).
type PhysPageNum uint64

// / VirtAddr is a virtual byte address (low 39 bits significant).
type VirtAddr uint64

// / VirtPageNum is a virtual page number (VirtAddr >> PageBits).
type VirtPageNum uint64

/// Floor truncates a to its containing page number.
func (a VirtAddr) Floor() VirtPageNum { return VirtPageNum(a >> PageBits) }

/// Ceil rounds a up to the page number at or above it.
func (a VirtAddr) Ceil() VirtPageNum {
	if a == 0 {
		return 0
	}
	return VirtPageNum((uint64(a) + PageSize - 1) >> PageBits)
}

/// PageOffset returns the in-page offset bits of a.
func (a VirtAddr) PageOffset() uint64 { return uint64(a) & (PageSize - 1) }

/// VPN truncates a down to its page number, requiring exact alignment.
func (a VirtAddr) VPN() VirtPageNum {
	if a.PageOffset() != 0 {
		panic("VirtAddr not page aligned")
	}
	return a.Floor()
}

/// Addr reconstructs the byte address at the base of vpn.
func (vpn VirtPageNum) Addr() VirtAddr { return VirtAddr(uint64(vpn) << PageBits) }

/// Floor truncates a to its containing physical page number.
func (a PhysAddr) Floor() PhysPageNum { return PhysPageNum(a >> PageBits) }

/// PageOffset returns the in-page offset bits of a.
func (a PhysAddr) PageOffset() uint64 { return uint64(a) & (PageSize - 1) }

/// Addr reconstructs the byte address at the base of ppn.
func (ppn PhysPageNum) Addr() PhysAddr { return PhysAddr(uint64(ppn) << PageBits) }

/// FromFrame views a physical page number as the page number of the frame
/// it names, for interop with package mem's PPN_t.
func FromFrame(p mem.PPN_t) PhysPageNum { return PhysPageNum(p) }

/// Frame views this physical page number as a package-mem page number.
func (ppn PhysPageNum) Frame() mem.PPN_t { return mem.PPN_t(ppn) }

/// Indexes decomposes a virtual page number into its three 9-bit SV39
/// page-table indexes, root level first (index[0]) to leaf (index[2]).
func (vpn VirtPageNum) Indexes() [PPNLevel]uint64 {
	var idx [PPNLevel]uint64
	v := uint64(vpn)
	for i := PPNLevel - 1; i >= 0; i-- {
		idx[i] = v & (1<<PPNBits - 1)
		v >>= PPNBits
	}
	return idx
}

// / VPNRange is a half-open [Start, End) range of virtual page numbers,
// / the shape every MemorySegment uses to describe its extent.
type VPNRange struct {
	Start, End VirtPageNum
}

/// Len reports the number of pages in the range.
func (r VPNRange) Len() int { return int(r.End - r.Start) }

/// Contains reports whether vpn falls inside the range.
func (r VPNRange) Contains(vpn VirtPageNum) bool { return vpn >= r.Start && vpn < r.End }

/// Overlaps reports whether r and o share any page.
func (r VPNRange) Overlaps(o VPNRange) bool {
	return r.Start < o.End && o.Start < r.End
}

/// Each calls f once per page number in the range, in ascending order.
func (r VPNRange) Each(f func(VirtPageNum)) {
	for v := r.Start; v < r.End; v++ {
		f(v)
	}
}
