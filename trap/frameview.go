package trap

import (
	"unsafe"

	"rvkernel/mem"
)

// FrameAt reinterprets a physical page's raw bytes as a *Frame, the same
// page-as-struct trick package vm's pointerCast uses for page-table-entry
// arrays. A thread's trap frame lives on its own dedicated framed page
// (spec §3); this is how the kernel reaches it once it has the page's
// bytes in hand.
func FrameAt(page *mem.Page_t) *Frame {
	return (*Frame)(unsafe.Pointer(page))
}
