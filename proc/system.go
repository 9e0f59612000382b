package proc

import (
	"fmt"
	"sync"
	"time"

	"rvkernel/fd"
	"rvkernel/ksync"
	"rvkernel/mem"
	"rvkernel/sched"
	"rvkernel/trap"
	"rvkernel/vm"
)

// System is the process manager's global state: the scheduler, the
// allocators every process/thread draws from, the kernel's shared
// address space, and the pid -> process table (spec §3's process-wide
// state, grounded on original_source's PID2PCB + KERNEL_STACK_ALLOCATOR
// lazy_statics, made an explicit struct instead of package globals so
// tests can run several independent kernels in one process).
type System struct {
	Sched         *sched.Processor
	fa            *mem.FrameAllocator
	kernelSpace   *vm.AddressSpace
	trampolinePPN vm.PhysPageNum
	console       fd.Console_i

	pidAlloc    *RecycleAllocator
	kstackAlloc *RecycleAllocator
	bootTime    time.Time

	mu    sync.Mutex
	procs map[int]*ProcessControlBlock
}

// NewSystem wires a process manager on top of an already-built
// scheduler, frame allocator, kernel address space, and console.
func NewSystem(sched *sched.Processor, fa *mem.FrameAllocator, kernelSpace *vm.AddressSpace, trampolinePPN vm.PhysPageNum, console fd.Console_i) *System {
	return &System{
		Sched:         sched,
		fa:            fa,
		kernelSpace:   kernelSpace,
		trampolinePPN: trampolinePPN,
		console:       console,
		pidAlloc:      NewRecycleAllocator(),
		kstackAlloc:   NewRecycleAllocator(),
		bootTime:      time.Now(),
		procs:         make(map[int]*ProcessControlBlock),
	}
}

// UptimeMs is spec §6's get_time: milliseconds elapsed since this System
// was constructed, standing in for a real hardware boot-time counter
// (Non-goals exclude the actual SBI timer/CLINT wiring).
func (s *System) UptimeMs() int64 { return time.Since(s.bootTime).Milliseconds() }

// Lookup returns the process registered under pid, if any.
func (s *System) Lookup(pid int) (*ProcessControlBlock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[pid]
	return p, ok
}

func (s *System) register(p *ProcessControlBlock) {
	s.mu.Lock()
	s.procs[p.Pid] = p
	s.mu.Unlock()
}

func (s *System) unregister(pid int) {
	s.mu.Lock()
	delete(s.procs, pid)
	s.mu.Unlock()
}

func (s *System) newKernelStack() *trap.KernelStack {
	id := s.kstackAlloc.Alloc()
	return trap.NewKernelStack(s.kernelSpace, s.fa, id)
}

// freeKernelStack unmaps t's kernel stack and returns its slot id to
// the pool; a no-op if t's stack was already freed.
func (s *System) freeKernelStack(t *TaskControlBlock) {
	if t.kstack == nil {
		return
	}
	id := t.kstack.ID()
	t.kstack.Free()
	s.kstackAlloc.Dealloc(id)
	t.kstack = nil
}

// newTask builds one thread for process: allocates a tid, a kernel
// stack, the user-resource slice of the address space (when alloc is
// true), and registers it with the scheduler under sched.StatusReady.
// body is the thread's own control-flow function, the same shape
// sched.Processor's tests use: it runs on its own goroutine and calls
// back into s.Sched to yield/block until it returns (spec Non-goals:
// actually decoding and executing user-mode RISC-V instructions is out
// of scope — body stands in for the trap-return/dispatch loop a real
// kernel would run there, driven instead by whatever calls into this
// package, e.g. the syscall dispatcher in package kernel).
func (s *System) newTask(process *ProcessControlBlock, userStackBase vm.VirtAddr, allocUserResource bool, body func(t *TaskControlBlock)) *TaskControlBlock {
	tid := process.AllocTid()
	ur := newTaskUserResource(process, tid, userStackBase, allocUserResource)
	kstack := s.newKernelStack()
	t := &TaskControlBlock{process: process, kstack: kstack, userResource: ur, tid: tid}
	t.handle = sched.NewHandle(func() { body(t) })
	process.setTask(t)
	s.Sched.AddTask(t)
	return t
}

// Spawn builds a brand-new process from an ELF image: a fresh address
// space, a main thread (tid 0), stdin/stdout/stderr pre-populated fds,
// and an initial trap frame ready to resume at the entry point (spec
// §3, §4.7; grounded on ProcessControlBlock::new).
func (s *System) Spawn(elfData []byte, body func(t *TaskControlBlock)) (*ProcessControlBlock, error) {
	as, userStackBase, entry, err := vm.FromELF(s.fa, s.trampolinePPN, elfData, UserStackPages)
	if err != nil {
		return nil, fmt.Errorf("proc: spawn: %w", err)
	}
	pid := s.pidAlloc.Alloc()
	process := newProcessControlBlock(pid, as)
	process.Fds = []*fd.Fd_t{
		{Fops: fd.NewStdin(s.console, s.Sched), Perms: fd.FD_READ},
		{Fops: fd.NewStdout(s.console), Perms: fd.FD_WRITE},
		{Fops: fd.NewStdout(s.console), Perms: fd.FD_WRITE},
	}

	task := s.newTask(process, userStackBase, true, body)
	ur := task.userResource
	frame := trap.AppInitFrame(uint64(entry), uint64(ur.UserStackTop()), s.kernelSpace.Satp(), uint64(task.KernelStackTop()), trapHandlerPlaceholder)
	*task.TrapFrame() = frame

	s.register(process)
	return process, nil
}

// trapHandlerPlaceholder stands in for the kernel's trap_handler entry
// address, which only exists as linked machine code (Non-goals: trap
// entry/exit assembly is out of scope). Any non-zero placeholder is
// fine since nothing in this hosted build ever jumps through it.
const trapHandlerPlaceholder = 0xffffffffffffe000

// KsyncSched exposes s.Sched as ksync.Sched_i, for callers (package
// syscall's mutex_create/semaphore_create/condvar_create handlers)
// constructing new per-process synchronization primitives.
func (s *System) KsyncSched() ksync.Sched_i { return s.Sched }
