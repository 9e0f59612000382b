package vm

import "rvkernel/mem"

// / TranslatedByteBuffers walks [va, va+length) through as, returning one
// / []byte slice per page it crosses, each a direct view onto the frame
// / backing it. A range that straddles pages with unrelated physical
// / backing therefore comes back as more than one slice — callers iterate
// / them in order via UserBuffer rather than assuming contiguity.
func TranslatedByteBuffers(as *AddressSpace, va VirtAddr, length int) [][]byte {
	var bufs [][]byte
	start := va
	end := VirtAddr(uint64(va) + uint64(length))
	for start < end {
		vpn := start.Floor()
		pte, ok := as.Translate(vpn)
		if !ok {
			panic("vm: translated buffer crosses unmapped page")
		}
		pageEnd := (vpn + 1).Addr()
		sliceEnd := end
		if pageEnd < sliceEnd {
			sliceEnd = pageEnd
		}
		page := mem.PageBytes(pte.PPN().Frame())
		lo := start.PageOffset()
		hi := sliceEnd.PageOffset()
		if hi == 0 {
			hi = PageSize
		}
		bufs = append(bufs, page[lo:hi])
		start = sliceEnd
	}
	return bufs
}

// / UserBuffer is a list of kernel-visible byte slices translated from a
// / user virtual range, iterated in user order. Required because a single
// / user buffer may straddle page boundaries with different physical
// / pages backing them (spec §9).
type UserBuffer struct {
	bufs []([]byte)
}

/// NewUserBuffer translates [va, va+length) in as into a UserBuffer.
func NewUserBuffer(as *AddressSpace, va VirtAddr, length int) *UserBuffer {
	return &UserBuffer{bufs: TranslatedByteBuffers(as, va, length)}
}

// NewUserBufferFromSlice wraps a single kernel-side slice as a UserBuffer
// directly, with no address-space translation. Used by fdops.Fdops_i
// implementers' tests, which exercise Read/Write against plain byte
// slices rather than a mapped address space.
func NewUserBufferFromSlice(b []byte) *UserBuffer {
	return &UserBuffer{bufs: [][]byte{b}}
}

/// Len reports the total number of bytes the buffer covers.
func (ub *UserBuffer) Len() int {
	n := 0
	for _, b := range ub.bufs {
		n += len(b)
	}
	return n
}

/// Read copies from the user buffer into dst, stopping at whichever of
/// len(dst) or the buffer's own length is smaller. Returns bytes copied.
func (ub *UserBuffer) Read(dst []byte) int {
	n := 0
	for _, b := range ub.bufs {
		if n >= len(dst) {
			break
		}
		n += copy(dst[n:], b)
	}
	return n
}

/// Write copies src into the user buffer, stopping at whichever of
/// len(src) or the buffer's own length is smaller. Returns bytes copied.
func (ub *UserBuffer) Write(src []byte) int {
	n := 0
	for _, b := range ub.bufs {
		if n >= len(src) {
			break
		}
		n += copy(b, src[n:])
	}
	return n
}

// ReadCString reads a NUL-terminated string starting at va, one byte at
// a time across however many pages it straddles (original_source's
// page_table.rs's translated_str, which walks the same way one byte at a
// time rather than assuming the string fits in a single page).
func ReadCString(as *AddressSpace, va VirtAddr) string {
	var out []byte
	cur := va
	for {
		b := NewUserBuffer(as, cur, 1)
		var c [1]byte
		b.Read(c[:])
		if c[0] == 0 {
			break
		}
		out = append(out, c[0])
		cur = VirtAddr(uint64(cur) + 1)
	}
	return string(out)
}
