package kernel

import (
	"rvkernel/proc"
	"rvkernel/trap"
)

// Cause mirrors the scause categories spec §4.4 names, resolved by
// whatever decodes the real CSR (Non-goals: "Assembly context-switch /
// trap-vector stubs"). HandleTrap only needs to know which bucket a trap
// fell into, not the raw encoding.
type Cause int

const (
	// UserEnvCall is an ecall from user mode (spec §4.4's "UserEnvCall").
	UserEnvCall Cause = iota
	// PageFault covers Store/Load/Instruction (page) faults alike — spec
	// §4.4 gives them identical handling (raise SIGSEGV).
	PageFault
	// IllegalInstruction raises SIGILL (spec §4.4).
	IllegalInstruction
	// SupervisorTimer is the periodic timer interrupt.
	SupervisorTimer
	// Other is every cause spec §4.4 says to panic on.
	Other
)

// HandleTrap runs one trap to completion against task, exactly
// implementing spec §4.4's dispatch table. nowMs is the current
// scheduler-relative time (spec §4.5's check_timer argument) for the
// SupervisorTimer path; stval is the faulting address/instruction word
// for diagnostics, used by the fault causes and the panic path and
// ignored by UserEnvCall and SupervisorTimer.
func (k *Kernel) HandleTrap(task *proc.TaskControlBlock, cause Cause, nowMs int64, stval uint64) {
	switch cause {
	case UserEnvCall:
		k.handleSyscall(task)
	case PageFault:
		k.raiseFault(task, proc.SIGSEGV, "PageFault in application, bad addr", stval)
	case IllegalInstruction:
		k.raiseFault(task, proc.SIGILL, "IllegalInstruction in application", stval)
	case SupervisorTimer:
		k.Sys.Sched.CheckTimer(nowMs)
		k.Sys.Sched.Yield()
	default:
		frame := task.TrapFrame()
		k.Panicf("kernel: trap from kernel mode, stval=%#x, sepc=%#x", stval, frame.Sepc)
	}
}

// handleSyscall implements spec §4.4's UserEnvCall case: advance sepc
// past the ecall instruction, dispatch on (a7, a0..a2), and write the
// result into a0 re-read from the current trap frame, since exec may
// have relocated the thread's trap-frame page.
func (k *Kernel) handleSyscall(task *proc.TaskControlBlock) {
	frame := task.TrapFrame()
	frame.Sepc += 4
	id, a0, a1, a2 := frame.SyscallArgs()

	result := k.Syscalls.Dispatch(k.InitProc, task, id, a0, a1, a2)

	frame = task.TrapFrame()
	frame.X[trap.RegA0] = result
}

// raiseFault converts a memory/instruction fault into a pending signal
// on the faulting process (spec §7: "converted to pending signals on
// the faulting process; the process dies at the next return-to-user
// unless a handler catches them") rather than killing it outright —
// original_source's trap_handler calls exit_current_and_run_next
// directly, but this spec (§4.4's "raise the appropriate signal")
// routes faults through the same HandleSignals path every other signal
// takes, so a process that installed a handler for SIGSEGV/SIGILL gets
// the chance to run it.
func (k *Kernel) raiseFault(task *proc.TaskControlBlock, sig proc.Signal, msg string, stval uint64) {
	frame := task.TrapFrame()
	k.Printf("[kernel] %s = %#x, bad instruction = %#x, pid=%d", msg, stval, frame.Sepc, task.Process().Pid)

	process := task.Process()
	process.Lock()
	process.Pending |= sig
	process.Unlock()
}
