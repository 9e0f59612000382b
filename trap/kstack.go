package trap

import (
	"rvkernel/mem"
	"rvkernel/vm"
)

const (
	kernelStackPages = 2 // per-thread kernel stack size in pages
)

// / TrapCxBase is the virtual page immediately below the trampoline,
// / where thread 0's trap frame lives; each higher tid gets the next page
// / down. This is the same computation for every process's address
// / space, since the trampoline sits at the same VA everywhere.
var TrapCxBase = TRAMPOLINE - vm.PageSize

// TRAMPOLINE mirrors vm.TRAMPOLINE; trap needs its own named constant
// because Go can't re-export another package's untyped const cleanly
// while keeping the VirtAddr type.
const TRAMPOLINE = vm.TRAMPOLINE

/// TrapCxBottomVA returns the virtual address of tid's trap-frame page:
/// TrapCxBase - tid*PAGE_SIZE, per spec §4.4.
func TrapCxBottomVA(tid int) vm.VirtAddr {
	return TrapCxBase - vm.VirtAddr(tid)*vm.PageSize
}

// / KernelStack is one thread's kernel-mode stack, mapped into the
// / kernel address space at a slot computed from its id. Frames are
// / installed on creation and removed when Free is called (spec §3).
type KernelStack struct {
	id         int
	bottom, top vm.VirtAddr
	seg        *vm.MemorySegment
	ks         *vm.AddressSpace
}

// kernelStackSlot computes (bottom, top) for stack id, leaving one guard
// page of unmapped VA between consecutive stacks so a stack overflow
// faults instead of corrupting its neighbor.
func kernelStackSlot(id int) (bottom, top vm.VirtAddr) {
	top = TRAMPOLINE - vm.VirtAddr(id)*(kernelStackPages+1)*vm.PageSize
	bottom = top - kernelStackPages*vm.PageSize
	return bottom, top
}

/// NewKernelStack maps a fresh kernel stack for id into the kernel
/// address space ks and returns a handle to it.
func NewKernelStack(ks *vm.AddressSpace, fa *mem.FrameAllocator, id int) *KernelStack {
	bottom, top := kernelStackSlot(id)
	seg := vm.NewSegment(bottom.Floor(), top.Floor(), vm.Framed, vm.PermR|vm.PermW)
	ks.AddSegment(seg, nil)
	return &KernelStack{id: id, bottom: bottom, top: top, seg: seg, ks: ks}
}

/// ID returns the slot id this stack occupies, for returning to whatever
/// allocator handed it out once the stack is freed.
func (k *KernelStack) ID() int { return k.id }

/// Top returns the stack's top virtual address (the initial SP).
func (k *KernelStack) Top() vm.VirtAddr { return k.top }

/// Bottom returns the stack's bottom virtual address.
func (k *KernelStack) Bottom() vm.VirtAddr { return k.bottom }

/// Free unmaps the stack's frames and removes it from the kernel space.
func (k *KernelStack) Free() {
	k.ks.RemoveSegmentWithStart(k.bottom.Floor())
}
