package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rvkernel/errno"
	"rvkernel/mem"
	"rvkernel/sched"
	"rvkernel/vm"
)

// fakeConsole satisfies fd.Console_i with no real UART behind it; proc
// tests never read/write stdio, they only need Spawn to be able to
// populate fd slots 0-2.
type fakeConsole struct{}

func (fakeConsole) GetChar() byte  { return 0 }
func (fakeConsole) PutChar(b byte) {}

func newTestSystem() *System {
	fa := mem.NewFrameAllocator(0, 1<<16)
	trampoline := fa.Alloc()
	kernelSpace := vm.NewBare(fa, vm.FromFrame(trampoline.PPN()))
	return NewSystem(sched.NewProcessor(), fa, kernelSpace, vm.FromFrame(trampoline.PPN()), fakeConsole{})
}

func testELF() []byte { return buildMinimalELF(0x1000, []byte("payload")) }

func TestSpawnBuildsRunnableMainThread(t *testing.T) {
	sys := newTestSystem()
	var ran bool
	process, err := sys.Spawn(testELF(), func(task *TaskControlBlock) { ran = true })
	require.NoError(t, err)

	assert.Equal(t, 1, process.ThreadCount())
	assert.Equal(t, uint64(0x1000), process.GetTask(0).TrapFrame().Sepc)
	assert.Len(t, process.Fds, 3)

	sys.Sched.RunTasks()
	assert.True(t, ran)
}

func TestForkDuplicatesStateAndZeroesChildReturnValue(t *testing.T) {
	sys := newTestSystem()
	parent, err := sys.Spawn(testELF(), func(task *TaskControlBlock) {})
	require.NoError(t, err)
	sys.Sched.RunTasks()

	child := sys.Fork(parent, func(task *TaskControlBlock) {})

	assert.NotEqual(t, parent.Pid, child.Pid)
	assert.Len(t, child.Fds, len(parent.Fds))
	assert.Equal(t, uint64(0), child.GetTask(0).TrapFrame().A0())
	assert.NotEqual(t, parent.GetTask(0).KernelStackTop(), child.GetTask(0).KernelStackTop())
	require.Len(t, parent.Children, 1)
	assert.Same(t, child, parent.Children[0])
	assert.Same(t, parent, child.Parent)

	sys.Sched.RunTasks()
}

func TestForkOnMultiThreadedProcessPanics(t *testing.T) {
	sys := newTestSystem()
	parent, err := sys.Spawn(testELF(), func(task *TaskControlBlock) {})
	require.NoError(t, err)
	sys.Sched.RunTasks()
	sys.ThreadCreate(parent, vm.VirtAddr(0x1000), 0, func(task *TaskControlBlock) {})

	assert.Panics(t, func() { sys.Fork(parent, func(task *TaskControlBlock) {}) })
}

func TestExecPushesArgvAndResetsEntry(t *testing.T) {
	sys := newTestSystem()
	process, err := sys.Spawn(testELF(), func(task *TaskControlBlock) {})
	require.NoError(t, err)
	sys.Sched.RunTasks()

	err = sys.Exec(process, testELF(), []string{"prog", "arg1"})
	require.NoError(t, err)

	frame := process.GetTask(0).TrapFrame()
	assert.Equal(t, uint64(0x1000), frame.Sepc)
	assert.Equal(t, uint64(2), frame.A0()) // argc
}

func TestThreadCreateSetsArgInA0(t *testing.T) {
	sys := newTestSystem()
	process, err := sys.Spawn(testELF(), func(task *TaskControlBlock) {})
	require.NoError(t, err)
	sys.Sched.RunTasks()

	worker := sys.ThreadCreate(process, vm.VirtAddr(0x1000), 42, func(task *TaskControlBlock) {})
	assert.Equal(t, uint64(42), worker.TrapFrame().A0())
	assert.Equal(t, 2, process.ThreadCount())

	sys.Sched.RunTasks()
}

func TestExitOfMainThreadZombiesProcessAndReparentsChildren(t *testing.T) {
	sys := newTestSystem()
	initproc, err := sys.Spawn(testELF(), func(task *TaskControlBlock) {})
	require.NoError(t, err)
	sys.Sched.RunTasks()

	parent, err := sys.Spawn(testELF(), func(task *TaskControlBlock) {})
	require.NoError(t, err)
	sys.Sched.RunTasks()

	child := sys.Fork(parent, func(task *TaskControlBlock) {})
	sys.Sched.RunTasks()

	sys.Exit(initproc, parent.GetTask(0), 7)

	assert.True(t, parent.Zombie)
	assert.Equal(t, 7, parent.ExitCode)
	assert.Empty(t, parent.Children)
	require.Len(t, initproc.Children, 1)
	assert.Same(t, child, initproc.Children[0])
	assert.Same(t, initproc, child.Parent)
}

func TestWaitPidReapsZombieChild(t *testing.T) {
	sys := newTestSystem()
	parent, err := sys.Spawn(testELF(), func(task *TaskControlBlock) {})
	require.NoError(t, err)
	sys.Sched.RunTasks()

	child := sys.Fork(parent, func(task *TaskControlBlock) {})
	sys.Sched.RunTasks()

	sys.Exit(nil, child.GetTask(0), 5)

	pid, code, status := WaitPid(parent, -1)
	assert.Equal(t, errno.Err_t(0), status)
	assert.Equal(t, child.Pid, pid)
	assert.Equal(t, 5, code)
	assert.Empty(t, parent.Children)
}

func TestWaitPidWithoutZombieReturnsEAGAIN(t *testing.T) {
	sys := newTestSystem()
	parent, err := sys.Spawn(testELF(), func(task *TaskControlBlock) {})
	require.NoError(t, err)
	sys.Sched.RunTasks()
	sys.Fork(parent, func(task *TaskControlBlock) {})

	_, _, status := WaitPid(parent, -1)
	assert.Equal(t, errno.EAGAIN, status)
}

func TestWaitPidWithNoMatchingChildReturnsESRCH(t *testing.T) {
	sys := newTestSystem()
	parent, err := sys.Spawn(testELF(), func(task *TaskControlBlock) {})
	require.NoError(t, err)
	sys.Sched.RunTasks()

	_, _, status := WaitPid(parent, -1)
	assert.Equal(t, errno.ESRCH, status)
}

func TestThreadExitThenWaitTidReapsAndRecyclesTid(t *testing.T) {
	sys := newTestSystem()
	process, err := sys.Spawn(testELF(), func(task *TaskControlBlock) {})
	require.NoError(t, err)
	sys.Sched.RunTasks()
	main := process.GetTask(0)

	worker := sys.ThreadCreate(process, vm.VirtAddr(0x1000), 0, func(task *TaskControlBlock) {})
	sys.Sched.RunTasks()
	workerTid := worker.Tid()

	sys.Exit(nil, worker, 9)
	code, status := WaitTid(process, main, workerTid)
	assert.Equal(t, errno.Err_t(0), status)
	assert.Equal(t, 9, code)
	assert.Nil(t, process.GetTask(workerTid))

	again := sys.ThreadCreate(process, vm.VirtAddr(0x1000), 0, func(task *TaskControlBlock) {})
	assert.Equal(t, workerTid, again.Tid())
}

func TestWaitTidOnSelfReturnsEINVAL(t *testing.T) {
	sys := newTestSystem()
	process, err := sys.Spawn(testELF(), func(task *TaskControlBlock) {})
	require.NoError(t, err)
	sys.Sched.RunTasks()
	main := process.GetTask(0)

	_, status := WaitTid(process, main, main.Tid())
	assert.Equal(t, errno.EINVAL, status)
}

func TestWaitTidBeforeExitReturnsEAGAIN(t *testing.T) {
	sys := newTestSystem()
	process, err := sys.Spawn(testELF(), func(task *TaskControlBlock) {})
	require.NoError(t, err)
	sys.Sched.RunTasks()
	main := process.GetTask(0)
	worker := sys.ThreadCreate(process, vm.VirtAddr(0x1000), 0, func(task *TaskControlBlock) {})

	_, status := WaitTid(process, main, worker.Tid())
	assert.Equal(t, errno.EAGAIN, status)
}

func TestHandleSignalsDispatchesToInstalledHandlerAndSigReturnRestores(t *testing.T) {
	sys := newTestSystem()
	process, err := sys.Spawn(testELF(), func(task *TaskControlBlock) {})
	require.NoError(t, err)
	sys.Sched.RunTasks()
	task := process.GetTask(0)
	originalSepc := task.TrapFrame().Sepc
	originalA0 := task.TrapFrame().A0()

	process.Actions.Table[signum(SIGUSR1)] = SignalAction{Handler: 0x2000}
	assert.Equal(t, 0, sys.Kill(process.Pid, SIGUSR1))

	sys.HandleSignals(task)
	assert.Equal(t, uint64(0x2000), task.TrapFrame().Sepc)
	assert.Equal(t, uint64(signum(SIGUSR1)), task.TrapFrame().A0())
	assert.Equal(t, signum(SIGUSR1), process.HandlingSignal)

	a0, status := SigReturn(task)
	assert.Equal(t, errno.Err_t(0), status)
	assert.Equal(t, originalA0, a0) // the restored frame's a0, not the signum
	assert.Equal(t, -1, process.HandlingSignal)
	assert.Equal(t, originalSepc, task.TrapFrame().Sepc)
}

func TestHandleSignalsKillsProcessOnFatalDefaultDisposition(t *testing.T) {
	sys := newTestSystem()
	process, err := sys.Spawn(testELF(), func(task *TaskControlBlock) {})
	require.NoError(t, err)
	sys.Sched.RunTasks()
	task := process.GetTask(0)

	sys.Kill(process.Pid, SIGSEGV)
	sys.HandleSignals(task)
	assert.True(t, process.Killed)
}

func TestHandleSignalsLeavesBlockedSignalPendingUndelivered(t *testing.T) {
	sys := newTestSystem()
	process, err := sys.Spawn(testELF(), func(task *TaskControlBlock) {})
	require.NoError(t, err)
	sys.Sched.RunTasks()
	task := process.GetTask(0)

	process.Blocked |= SIGUSR1
	sys.Kill(process.Pid, SIGUSR1)
	sys.HandleSignals(task)
	assert.False(t, process.Killed)
	assert.Equal(t, -1, process.HandlingSignal)
	assert.Equal(t, SIGUSR1, process.Pending&SIGUSR1, "a blocked signal must stay pending, not be dropped")

	process.Blocked &^= SIGUSR1
	sys.HandleSignals(task)
	assert.Equal(t, Signal(0), process.Pending&SIGUSR1, "once unblocked, the surviving pending signal must finally be drained")
}

func TestSigstopFreezesAndSigcontThaws(t *testing.T) {
	sys := newTestSystem()
	process, err := sys.Spawn(testELF(), func(task *TaskControlBlock) {})
	require.NoError(t, err)
	sys.Sched.RunTasks()
	task := process.GetTask(0)

	sys.Kill(process.Pid, SIGSTOP)
	sys.HandleSignals(task)
	assert.True(t, process.Frozen)

	process.Actions.Table[signum(SIGUSR1)] = SignalAction{Handler: 0x3000}
	sys.Kill(process.Pid, SIGUSR1)
	sys.HandleSignals(task)
	assert.Equal(t, uint64(0x1000), task.TrapFrame().Sepc) // still frozen, handler never ran

	sys.Kill(process.Pid, SIGCONT)
	sys.HandleSignals(task)
	assert.False(t, process.Frozen)
	assert.Equal(t, uint64(0x3000), task.TrapFrame().Sepc)
}

func TestSigReturnWithoutPendingHandlerReturnsEINVAL(t *testing.T) {
	sys := newTestSystem()
	process, err := sys.Spawn(testELF(), func(task *TaskControlBlock) {})
	require.NoError(t, err)
	sys.Sched.RunTasks()
	task := process.GetTask(0)

	_, status := SigReturn(task)
	assert.Equal(t, errno.EINVAL, status)
}
