package proc

import (
	"rvkernel/sched"
	"rvkernel/trap"
	"rvkernel/vm"
)

// UserStackPages is the page count of every thread's user-mode stack,
// shared by the initial process spawn, fork, and thread_create so every
// thread's stack slot in a process's address space is the same size.
const UserStackPages = 2

// userStackStep is the byte distance between consecutive threads' user
// stack bottoms: the stack itself plus one guard page (spec §4.7,
// grounded on original_source's user_resource.rs user_stack_bottom).
const userStackStep = (UserStackPages + 1) * int(vm.PageSize)

// TaskUserResource is the per-thread slice of a process's address space:
// its user stack and its trap-frame page, both indexed by tid so every
// thread in a process gets a disjoint slot (original_source's
// TaskUserResource).
type TaskUserResource struct {
	tid           int
	userStackBase vm.VirtAddr
	process       *ProcessControlBlock
}

func newTaskUserResource(process *ProcessControlBlock, tid int, userStackBase vm.VirtAddr, allocate bool) *TaskUserResource {
	r := &TaskUserResource{tid: tid, userStackBase: userStackBase, process: process}
	if allocate {
		r.Alloc()
	}
	return r
}

func (r *TaskUserResource) userStackBottom() vm.VirtAddr {
	return r.userStackBase + vm.VirtAddr(r.tid*userStackStep)
}

// UserStackTop returns the initial stack pointer for this thread.
func (r *TaskUserResource) UserStackTop() vm.VirtAddr {
	return r.userStackBottom() + vm.VirtAddr(UserStackPages)*vm.PageSize
}

// TrapCxBottomVA returns the virtual address of this thread's trap frame.
func (r *TaskUserResource) TrapCxBottomVA() vm.VirtAddr {
	return trap.TrapCxBottomVA(r.tid)
}

// Alloc maps this thread's user stack and trap-frame page into its
// process's address space.
func (r *TaskUserResource) Alloc() {
	bottom := r.userStackBottom()
	top := bottom + vm.VirtAddr(UserStackPages)*vm.PageSize
	r.process.AddressSpace.AddSegment(vm.NewSegment(bottom.Floor(), top.Floor(), vm.Framed, vm.PermR|vm.PermW|vm.PermU), nil)

	cxBottom := r.TrapCxBottomVA()
	r.process.AddressSpace.AddSegment(vm.NewSegment(cxBottom.Floor(), (cxBottom + vm.PageSize).Floor(), vm.Framed, vm.PermR|vm.PermW), nil)
}

// Dealloc unmaps this thread's user stack and trap-frame page. Called
// when the thread exits or is reaped; the tid itself is freed
// separately (spec §4.7: "tid will be released when the process exits,
// or the thread is waited").
func (r *TaskUserResource) Dealloc() {
	r.process.AddressSpace.RemoveSegmentWithStart(r.userStackBottom().Floor())
	r.process.AddressSpace.RemoveSegmentWithStart(r.TrapCxBottomVA().Floor())
}

// TrapFramePPN resolves this thread's trap-frame page through its
// process's address space.
func (r *TaskUserResource) TrapFramePPN() vm.PhysPageNum {
	ppn, ok := r.process.AddressSpace.Translate(r.TrapCxBottomVA().Floor())
	if !ok {
		panic("proc: trap frame page not mapped")
	}
	return ppn.PPN()
}

// TaskControlBlock is one schedulable thread (spec §3 "TaskControlBlock").
// It holds a *sched.Handle and satisfies sched.Task through its Handle
// method.
type TaskControlBlock struct {
	handle        *sched.Handle
	process       *ProcessControlBlock
	kstack        *trap.KernelStack
	userResource  *TaskUserResource // nil once the thread has exited
	exitCode      *int
	tid           int
}

// Handle satisfies sched.Task.
func (t *TaskControlBlock) Handle() *sched.Handle { return t.handle }

// Tid reports this thread's id within its process.
func (t *TaskControlBlock) Tid() int { return t.tid }

// Process returns the owning process.
func (t *TaskControlBlock) Process() *ProcessControlBlock { return t.process }

// KernelStackTop is this thread's kernel-mode stack pointer.
func (t *TaskControlBlock) KernelStackTop() vm.VirtAddr { return t.kstack.Top() }

// TrapFrame returns the live trap frame this thread resumes into,
// reached by translating its trap-frame page through its process's
// address space (the frame itself lives in guest memory, not in the
// TCB).
func (t *TaskControlBlock) TrapFrame() *trap.Frame {
	if t.userResource == nil {
		panic("proc: trap frame requested on an exited thread")
	}
	return trap.FrameAt(vmPageBytes(t.userResource.TrapFramePPN()))
}

// ExitCode reports this thread's exit code, if it has exited.
func (t *TaskControlBlock) ExitCode() (int, bool) {
	if t.exitCode == nil {
		return 0, false
	}
	return *t.exitCode, true
}
