// Package kernel is the bring-up and trap-dispatch orchestration layer:
// it wires mem/vm/trap/proc/sched/ksync/fs/fd/syscall into one bootable
// kernel, the way original_source's main.rs's rust_init/rust_main glue
// the same pieces together (spec §2's data-flow: "user traps into the
// kernel via the trampoline; the syscall dispatcher consumes the trap
// frame; ... process/thread/sync syscalls mutate PCB/TCB state").
//
// Board bring-up proper (clearing bss, programming the timer, the
// trampoline's entry/exit assembly) is an external collaborator per the
// spec's Non-goals ("Board constants", "Assembly context-switch /
// trap-vector stubs"); this package starts from an already-allocated
// byte range, an already-resolved KernelLayout, and an already-working
// Disk_i/Console_i pair, exactly as original_source's rust_init calls
// mm::init()/trap::init() after sbi::uart_init() has already run.
package kernel

import (
	"fmt"
	"io"

	"rvkernel/fd"
	"rvkernel/fs"
	"rvkernel/mem"
	"rvkernel/proc"
	"rvkernel/sched"
	"rvkernel/syscall"
	"rvkernel/vm"
)

// Kernel is every piece of global state a booted instance owns: the
// process manager, the syscall dispatcher, the mounted filesystem root,
// the first process, and the console stream Printf/Panicf write to
// (standing in for the teacher's own fmt.Printf-to-UART diagnostics —
// see SPEC_FULL.md's AMBIENT STACK note).
type Kernel struct {
	Sys      *proc.System
	Syscalls *syscall.Dispatcher
	Root     *fs.Inode
	InitProc *proc.ProcessControlBlock

	out io.Writer
}

// Boot brings up one kernel instance: a frame allocator over
// [fa.startPPN, fa.endPPN) (already computed by the caller from board
// memory-end/ekernel constants — Non-goals), the kernel's own identity-
// mapped address space, the mounted filesystem's root directory, and
// the first process (spec's "initproc") spawned from initElf. Grounded
// on original_source's rust_init (mm::init, trap::init) followed by
// rust_main (fs::list_apps, task::run_tasks) — the list_apps step is
// exposed as Root.Ls() rather than printed, since printing app names is
// a console concern the caller, not Boot, decides whether to do.
func Boot(out io.Writer, fa *mem.FrameAllocator, layout vm.KernelLayout, disk fs.Disk_i, console fd.Console_i, initElf []byte, threadBody func(t *proc.TaskControlBlock)) (*Kernel, error) {
	trampoline := fa.Alloc()
	trampolinePPN := vm.FromFrame(trampoline.PPN())
	kernelSpace := vm.NewKernelSpace(fa, trampolinePPN, layout)

	sys := proc.NewSystem(sched.NewProcessor(), fa, kernelSpace, trampolinePPN, console)

	efs := fs.OpenFilesystem(disk)
	root := fs.RootInode(efs)

	k := &Kernel{Sys: sys, Root: root, out: out}
	bodyFn := func(t *proc.TaskControlBlock) { k.runThread(t, threadBody) }
	k.Syscalls = syscall.NewDispatcher(sys, root, bodyFn)

	initproc, err := sys.Spawn(initElf, bodyFn)
	if err != nil {
		return nil, fmt.Errorf("kernel: boot: %w", err)
	}
	k.InitProc = initproc
	return k, nil
}

// Printf writes a diagnostic line to the kernel's console stream —
// the hosted equivalent of the teacher's bare fmt.Printf kernel prints
// (vm/as.go) and original_source's println! macro; never fatal.
func (k *Kernel) Printf(format string, args ...interface{}) {
	fmt.Fprintf(k.out, format, args...)
}

// Panicf prints a diagnostic line and then panics, the hosted stand-in
// for a kernel trap or an Unrecoverable condition (spec §7): frame/
// cache/bitmap exhaustion, or a trap taken while already in kernel mode
// (spec §4.4: "Kernel traps are a bug: route to a panic handler that
// prints stval and sepc").
func (k *Kernel) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(k.out, msg)
	panic(msg)
}

// runThread is the control-flow loop every thread's goroutine actually
// executes (shared by Spawn's main thread, Fork's child, and
// ThreadCreate's worker — see proc.System.newTask's body parameter).
// Non-goals exclude decoding and executing real RISC-V instructions, so
// there is no user code to run here; what stands in its place is
// exactly the part of the trap-return boundary the spec assigns to
// every suspension point regardless of which instruction trapped: drain
// pending signals (spec §4.8, "delivered only at kernel->user
// boundaries"), honor a kill request, and otherwise yield back to the
// scheduler so sibling threads get their turn. driver is the hook a
// caller (a test, or eventually a real ecall-decoding front end) uses to
// inject one "trap" worth of work — typically a HandleTrap call — before
// the next iteration's signal check.
func (k *Kernel) runThread(t *proc.TaskControlBlock, driver func(t *proc.TaskControlBlock)) {
	for {
		if driver != nil {
			driver(t)
		}
		k.Sys.HandleSignals(t)

		process := t.Process()
		process.Lock()
		killed := process.Killed
		process.Unlock()
		if killed {
			k.Sys.Exit(k.InitProc, t, -1)
			return
		}
		if _, exited := t.ExitCode(); exited {
			return
		}
		k.Sys.Sched.Yield()
	}
}
