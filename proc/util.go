package proc

import (
	"rvkernel/mem"
	"rvkernel/vm"
)

// vmPageBytes views a physical page number as its backing storage,
// bridging package vm's PhysPageNum and package mem's PPN_t the same
// way vm.TranslatedByteBuffers does.
func vmPageBytes(ppn vm.PhysPageNum) *mem.Page_t {
	return mem.PageBytes(ppn.Frame())
}
