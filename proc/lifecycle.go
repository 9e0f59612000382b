package proc

import (
	"encoding/binary"

	"rvkernel/errno"
	"rvkernel/fd"
	"rvkernel/trap"
	"rvkernel/vm"
)

// Fork clones process into a brand-new child (spec §4.7: "single-
// thread-only, clone address space, new pid, duplicate fd table by
// shared reference, inherit signal mask/action table, child's a0=0").
// body is the child's own control-flow function (see System.newTask).
func (s *System) Fork(process *ProcessControlBlock, body func(t *TaskControlBlock)) *ProcessControlBlock {
	process.Lock()
	if process.ThreadCount() != 1 {
		process.Unlock()
		panic("proc: fork requires a single-threaded process")
	}
	as := process.AddressSpace.Fork()
	fds := make([]*fd.Fd_t, len(process.Fds))
	for i, f := range process.Fds {
		if f == nil {
			continue
		}
		nf, err := fd.Copyfd(f)
		if err != 0 {
			panic("proc: fork: duplicating fd failed")
		}
		fds[i] = nf
	}
	blocked := process.Blocked
	actions := process.Actions.Clone()
	parentTask0 := process.GetTask(0)
	userStackBase := parentTask0.userResource.userStackBase
	process.Unlock()

	pid := s.pidAlloc.Alloc()
	child := newProcessControlBlock(pid, as)
	child.Fds = fds
	child.Blocked = blocked
	child.Actions = actions
	child.Parent = process

	// The address space was copied byte-for-byte, so the child's main
	// thread already has a mapped user stack and trap-frame page;
	// allocUserResource is false here because nothing new needs mapping.
	task := s.newTask(child, userStackBase, false, body)

	// The copied trap frame still has the parent's kernel-stack top
	// baked in; patch it to the child's own freshly allocated stack,
	// and zero the return value (fork returns 0 in the child).
	frame := task.TrapFrame()
	frame.KernelSP = uint64(task.KernelStackTop())
	frame.SetA0(0)

	s.register(child)
	process.Lock()
	process.Children = append(process.Children, child)
	process.Unlock()
	return child
}

// writeUserVA copies b into the address space as starting at va,
// straddling pages the same way UserBuffer already handles for
// syscall-supplied buffers.
func writeUserVA(as *vm.AddressSpace, va vm.VirtAddr, b []byte) {
	ub := vm.NewUserBuffer(as, va, len(b))
	ub.Write(b)
}

// Exec replaces process's address space and main thread with a freshly
// loaded ELF image, pushing argv onto the new user stack (spec §4.7:
// "single-thread-only, new address space from ELF replaces old, reset
// trap-frame PPN, write argc/argv down new user stack 8-byte aligned,
// sepc=entry, a0=argc, a1=argv_base").
func (s *System) Exec(process *ProcessControlBlock, elfData []byte, args []string) error {
	process.Lock()
	if process.ThreadCount() != 1 {
		process.Unlock()
		panic("proc: exec requires a single-threaded process")
	}
	process.Unlock()

	as, userStackBase, entry, err := vm.FromELF(s.fa, s.trampolinePPN, elfData, UserStackPages)
	if err != nil {
		return err
	}

	process.Lock()
	process.AddressSpace = as
	task := process.GetTask(0)
	task.userResource = newTaskUserResource(process, 0, userStackBase, true)
	process.Unlock()

	top := task.userResource.UserStackTop()
	argvBase := top - vm.VirtAddr((len(args)+1)*8)
	argvPtrs := make([]uint64, len(args)+1)
	cursor := argvBase
	for i, a := range args {
		raw := append([]byte(a), 0)
		cursor -= vm.VirtAddr(len(raw))
		writeUserVA(as, cursor, raw)
		argvPtrs[i] = uint64(cursor)
	}
	argvPtrs[len(args)] = 0
	cursor -= vm.VirtAddr(uint64(cursor) % 8) // 8-byte align the final stack pointer

	argvBytes := make([]byte, (len(args)+1)*8)
	for i, p := range argvPtrs {
		binary.LittleEndian.PutUint64(argvBytes[i*8:], p)
	}
	writeUserVA(as, argvBase, argvBytes)

	frame := trap.AppInitFrame(uint64(entry), uint64(cursor), s.kernelSpace.Satp(), uint64(task.KernelStackTop()), trapHandlerPlaceholder)
	frame.X[trap.RegA0] = uint64(len(args))
	frame.X[trap.RegA1] = uint64(argvBase)
	*task.TrapFrame() = frame
	return nil
}

// ThreadCreate spawns a new thread in process resuming at entry with
// arg in a0 (spec §4.7: "new tid, fresh user stack + trap frame +
// kernel stack, trap frame (entry, user_stack_top) with a0=arg").
func (s *System) ThreadCreate(process *ProcessControlBlock, entry vm.VirtAddr, arg uint64, body func(t *TaskControlBlock)) *TaskControlBlock {
	process.Lock()
	userStackBase := process.GetTask(0).userResource.userStackBase
	process.Unlock()

	task := s.newTask(process, userStackBase, true, body)
	frame := trap.AppInitFrame(uint64(entry), uint64(task.userResource.UserStackTop()), s.kernelSpace.Satp(), uint64(task.KernelStackTop()), trapHandlerPlaceholder)
	frame.X[trap.RegA0] = arg
	*task.TrapFrame() = frame
	return task
}

// Exit records tcb's exit code and drops its user-mode resources; if
// tcb is the main thread or the process has been killed, the whole
// process becomes a zombie: children are reparented to initproc, the
// fd/sync tables are dropped, the address space is destroyed, and every
// other thread's TCB is torn down (spec §4.7).
func (s *System) Exit(initproc *ProcessControlBlock, tcb *TaskControlBlock, code int) {
	process := tcb.process
	process.Lock()
	defer process.Unlock()

	codeCopy := code
	tcb.exitCode = &codeCopy
	if tcb.userResource != nil {
		tcb.userResource.Dealloc()
		tcb.userResource = nil
	}
	s.Sched.RemoveTask(tcb)
	s.freeKernelStack(tcb)

	if tcb.tid != 0 && !process.Killed {
		return
	}

	process.Zombie = true
	process.ExitCode = code

	if initproc != nil && initproc != process {
		for _, child := range process.Children {
			child.Parent = initproc
			initproc.Lock()
			initproc.Children = append(initproc.Children, child)
			initproc.Unlock()
		}
	}
	process.Children = nil

	for _, f := range process.Fds {
		if f != nil {
			fd.Close_panic(f)
		}
	}
	process.Fds = nil
	process.Mutexes = nil
	process.Semaphores = nil
	process.Condvars = nil

	for _, other := range process.Tasks {
		if other == nil || other == tcb {
			continue
		}
		s.Sched.RemoveTask(other)
		if other.userResource != nil {
			other.userResource.Dealloc()
			other.userResource = nil
		}
		s.freeKernelStack(other)
	}
	process.Tasks = []*TaskControlBlock{tcb}

	process.AddressSpace.Destroy()
}

// WaitPid looks for a zombie child matching pid (-1 matches any),
// reaps it, and reports its exit code (spec §4.7: "-1 no match / -2
// exists-but-not-zombie / else pid+exit code").
func WaitPid(process *ProcessControlBlock, pid int) (foundPid int, exitCode int, status errno.Err_t) {
	process.Lock()
	defer process.Unlock()

	any := false
	for i, child := range process.Children {
		if pid != -1 && child.Pid != pid {
			continue
		}
		any = true
		if child.Zombie {
			process.Children = append(process.Children[:i:i], process.Children[i+1:]...)
			return child.Pid, child.ExitCode, 0
		}
	}
	if !any {
		return -1, 0, errno.ESRCH
	}
	return -2, 0, errno.EAGAIN
}

// WaitTid reaps thread tid in process on behalf of caller (itself a
// thread of the same process). Returns (-1, missing/self), (-2,
// not yet exited), or (exit code, reaped) (spec §4.7).
func WaitTid(process *ProcessControlBlock, caller *TaskControlBlock, tid int) (exitCode int, status errno.Err_t) {
	process.Lock()
	defer process.Unlock()

	if tid == caller.tid {
		return -1, errno.EINVAL
	}
	t := process.GetTask(tid)
	if t == nil {
		return -1, errno.ESRCH
	}
	code, exited := t.ExitCode()
	if !exited {
		return -2, errno.EAGAIN
	}
	process.Tasks[tid] = nil
	process.DeallocTid(tid)
	return code, 0
}

// Kill sets signal pending on the process registered under pid.
// Returns 0 on success, -1 if the process doesn't exist or the signal
// is already pending (spec §6's kill(pid, signal)).
func (s *System) Kill(pid int, signal Signal) int {
	process, ok := s.Lookup(pid)
	if !ok {
		return -1
	}
	process.Lock()
	defer process.Unlock()
	if process.Pending&signal != 0 {
		return -1
	}
	process.Pending |= signal
	return 0
}

// HandleSignals drains process's pending signals against task, one
// trap-return's worth at a time (spec §4.8): SIGCONT always clears
// Frozen and keeps draining; SIGSTOP sets Frozen and stops; a signal
// with no installed handler either kills the process (the fatal set)
// or is silently dropped; a signal with a handler saves the trap frame
// and diverts execution to it, then stops until sigreturn.
func (s *System) HandleSignals(task *TaskControlBlock) {
	process := task.process
	for {
		process.Lock()
		if process.Pending == 0 {
			process.Unlock()
			return
		}
		// While frozen, SIGCONT is the only bit worth looking for —
		// scanning lowest-signum-first would let some lower-numbered,
		// still-pending signal block it from ever being seen. Once
		// thawed, dispatch resumes in lowest-signum-first order, skipping
		// any candidate that is currently blocked so its pending bit
		// survives for a later unblock instead of being cleared and lost
		// (SIGCONT/SIGSTOP are never blockable, so they're never skipped).
		var sig Signal
		num := -1
		if process.Frozen {
			if process.Pending&SIGCONT != 0 {
				sig, num = SIGCONT, signum(SIGCONT)
			} else {
				process.Unlock()
				return
			}
		} else {
			for n := 0; n < SigCount; n++ {
				cand, _ := signalFromNum(n)
				if process.Pending&cand == 0 {
					continue
				}
				if cand != SIGCONT && cand != SIGSTOP && process.Blocked&cand != 0 {
					continue
				}
				sig, num = cand, n
				break
			}
			if num == -1 {
				process.Unlock()
				return
			}
		}
		process.Pending &^= sig

		if sig == SIGCONT {
			process.Frozen = false
			process.Unlock()
			continue
		}
		if sig == SIGSTOP {
			process.Frozen = true
			process.Unlock()
			return
		}
		// Every other candidate reaching here was already confirmed
		// unblocked by the scan above.

		action := process.Actions.Table[num]
		if action.Handler == 0 {
			process.Unlock()
			if defaultFatal[sig] {
				process.Lock()
				process.Killed = true
				process.Unlock()
				return
			}
			continue
		}

		frame := task.TrapFrame()
		saved := *frame
		process.SavedTrapFrame = &saved
		process.PreHandlingBlocked = process.Blocked
		process.HandlingSignal = num
		process.Blocked |= action.Mask
		frame.Sepc = action.Handler
		frame.X[trap.RegA0] = uint64(num)
		process.Unlock()
		return
	}
}

// SigReturn restores the trap frame saved by the most recent
// HandleSignals dispatch and clears HandlingSignal (spec §4.8:
// "sigreturn restores + clears handling_signal"). Returns the restored
// frame's a0 (the handler's syscall-return-style result) and EINVAL if
// no signal was being handled.
func SigReturn(task *TaskControlBlock) (a0 uint64, status errno.Err_t) {
	process := task.process
	process.Lock()
	defer process.Unlock()
	if process.SavedTrapFrame == nil {
		return 0, errno.EINVAL
	}
	*task.TrapFrame() = *process.SavedTrapFrame
	process.SavedTrapFrame = nil
	process.HandlingSignal = -1
	process.Blocked = process.PreHandlingBlocked
	return task.TrapFrame().A0(), 0
}
