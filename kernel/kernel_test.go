package kernel

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rvkernel/fs"
	"rvkernel/mem"
	"rvkernel/proc"
	"rvkernel/syscall"
	"rvkernel/vm"
)

type fakeConsole struct{}

func (fakeConsole) GetChar() byte  { return 0 }
func (fakeConsole) PutChar(b byte) {}

type memDisk struct {
	blocks [][fs.BlockSize]byte
}

func newMemDisk(n int) *memDisk { return &memDisk{blocks: make([][fs.BlockSize]byte, n)} }

func (m *memDisk) ReadBlock(id int, out []byte)  { copy(out, m.blocks[id][:]) }
func (m *memDisk) WriteBlock(id int, in []byte) { copy(m.blocks[id][:], in) }

const testImageBlocks = 1100
const testInodeBitmapBlocks = 1

func testLayout() vm.KernelLayout {
	r := func(start, end uint64) vm.VPNRange {
		return vm.VPNRange{Start: vm.VirtPageNum(start), End: vm.VirtPageNum(end)}
	}
	return vm.KernelLayout{
		Text:     r(0x100, 0x101),
		Rodata:   r(0x101, 0x102),
		Data:     r(0x102, 0x103),
		BSS:      r(0x103, 0x104),
		PhysTail: r(0x200, 0x210),
	}
}

// bootedKernel formats a fresh disk, seeds it with an "initproc" file
// holding a minimal ELF image, and boots a Kernel against it — the same
// two-phase sequence a real deployment's mkdisk-then-boot split follows.
func bootedKernel(t *testing.T) (*Kernel, *memDisk) {
	disk := newMemDisk(testImageBlocks)
	efs := fs.CreateFilesystem(disk, testImageBlocks, testInodeBitmapBlocks)
	root := fs.RootInode(efs)
	initInode, ok := root.Create("initproc")
	require.True(t, ok)
	elfImage := buildMinimalELF(0x1000, []byte("payload"))
	initInode.WriteAt(0, elfImage)
	root.SyncAll()

	fa := mem.NewFrameAllocator(0, 1<<16)
	k, err := Boot(&bytes.Buffer{}, fa, testLayout(), disk, fakeConsole{}, elfImage, nil)
	require.NoError(t, err)
	return k, disk
}

func TestBootSpawnsInitProcWithThreePreopenedFds(t *testing.T) {
	k, _ := bootedKernel(t)
	assert.Equal(t, 1, k.InitProc.ThreadCount())
	assert.Len(t, k.InitProc.Fds, 3)
}

func TestBootListsRootDirectory(t *testing.T) {
	k, _ := bootedKernel(t)
	names := k.Root.Ls()
	assert.Contains(t, names, "initproc")
}

func TestHandleTrapDispatchesUserEnvCallThroughSyscalls(t *testing.T) {
	k, _ := bootedKernel(t)
	task := k.InitProc.GetTask(0)
	frame := task.TrapFrame()
	frame.X[17] = syscall.Getpid // a7
	sepcBefore := frame.Sepc

	k.HandleTrap(task, UserEnvCall, 0, 0)

	assert.Equal(t, sepcBefore+4, task.TrapFrame().Sepc)
	assert.Equal(t, uint64(k.InitProc.Pid), task.TrapFrame().X[10])
}

func TestHandleTrapPageFaultRaisesSigsegv(t *testing.T) {
	k, _ := bootedKernel(t)
	task := k.InitProc.GetTask(0)

	k.HandleTrap(task, PageFault, 0, 0)

	k.InitProc.Lock()
	pending := k.InitProc.Pending
	k.InitProc.Unlock()
	assert.NotZero(t, pending&proc.SIGSEGV)
}

func TestHandleTrapIllegalInstructionRaisesSigill(t *testing.T) {
	k, _ := bootedKernel(t)
	task := k.InitProc.GetTask(0)

	k.HandleTrap(task, IllegalInstruction, 0, 0)

	k.InitProc.Lock()
	pending := k.InitProc.Pending
	k.InitProc.Unlock()
	assert.NotZero(t, pending&proc.SIGILL)
}

func TestHandleTrapOtherCausePanics(t *testing.T) {
	k, _ := bootedKernel(t)
	task := k.InitProc.GetTask(0)
	assert.Panics(t, func() { k.HandleTrap(task, Other, 0, 0xdead) })
}

func TestPanicfWritesMessageBeforePanicking(t *testing.T) {
	var buf bytes.Buffer
	k := &Kernel{out: &buf}
	assert.Panics(t, func() { k.Panicf("boom %d", 7) })
	assert.Contains(t, buf.String(), "boom 7")
}

func TestRunThreadExitsWhenKilled(t *testing.T) {
	k, _ := bootedKernel(t)
	task := k.InitProc.GetTask(0)

	k.InitProc.Lock()
	k.InitProc.Killed = true
	k.InitProc.Unlock()

	done := make(chan struct{})
	go func() {
		k.runThread(task, nil)
		close(done)
	}()
	k.Sys.Sched.RunTasks()
	<-done

	_, exited := task.ExitCode()
	assert.True(t, exited)
}
