package vm

import (
	"unsafe"

	"rvkernel/mem"
)

// pointerCast reinterprets a page's raw bytes as an unsafe.Pointer,
// mirroring the teacher's Pg2bytes/Bytepg2pg page-reinterpretation idiom
// (vm/as.go, mem/mem.go) for the SV39 page-table-entry array layout.
func pointerCast(p *mem.Page_t) unsafe.Pointer {
	return unsafe.Pointer(p)
}
