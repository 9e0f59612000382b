// Package syscall routes a trapped user syscall (spec §6: "caller
// convention a7=id, a0..a2=args, return in a0") to package proc. It
// knows nothing about trap entry/exit assembly (Non-goals) — the caller
// (package kernel) decodes scause, pulls the four registers out of the
// current thread's trap frame, and hands them to Dispatch.
package syscall

import (
	"encoding/binary"

	"rvkernel/errno"
	"rvkernel/fd"
	"rvkernel/fs"
	"rvkernel/ksync"
	"rvkernel/proc"
	"rvkernel/vm"
)

// Syscall numbers, spec §6's stable identifier table.
const (
	Dup             = 24
	Open            = 56
	Close           = 57
	Pipe            = 59
	Read            = 63
	Write           = 64
	Exit            = 93
	Sleep           = 101
	Yield           = 124
	Kill            = 129
	GetTime         = 169
	Getpid          = 172
	Fork            = 220
	Exec            = 221
	Waitpid         = 260
	ThreadCreate    = 1000
	Gettid          = 1001
	Waittid         = 1002
	MutexCreate     = 1010
	MutexLock       = 1011
	MutexUnlock     = 1012
	SemaphoreCreate = 1020
	SemaphoreUp     = 1021
	SemaphoreDown   = 1022
	CondvarCreate   = 1030
	CondvarSignal   = 1031
	CondvarWait     = 1032
)

// Dispatcher is the one piece of shared state every handler needs beyond
// the calling process/thread: the process manager, the mounted
// filesystem's root directory (for open/exec's path resolution, spec
// §4.9's flat-rooted namespace), and the control-flow function every
// freshly created thread runs (the same one package kernel gave
// System.Spawn for the very first process — fork and thread_create reuse
// it rather than each syscall inventing its own).
type Dispatcher struct {
	sys  *proc.System
	root *fs.Inode
	body func(t *proc.TaskControlBlock)
}

// NewDispatcher wires a dispatcher on top of an already-booted System and
// mounted filesystem root.
func NewDispatcher(sys *proc.System, root *fs.Inode, body func(t *proc.TaskControlBlock)) *Dispatcher {
	return &Dispatcher{sys: sys, root: root, body: body}
}

// Dispatch runs one syscall on behalf of task and returns the value to
// place in the trap frame's a0 (spec §6). initproc is the kernel's init
// process, reparenting a zombifying process's orphaned children (spec
// §4.7); it is nil only during the init process's own construction.
func (d *Dispatcher) Dispatch(initproc *proc.ProcessControlBlock, task *proc.TaskControlBlock, id, a0, a1, a2 uint64) uint64 {
	process := task.Process()
	switch id {
	case Dup:
		return ret(d.dup(process, int(a0)))
	case Open:
		return ret(d.open(process, vm.VirtAddr(a0), int(a1)))
	case Close:
		return ret(d.close(process, int(a0)))
	case Pipe:
		return ret(d.pipe(process, vm.VirtAddr(a0)))
	case Read:
		return ret(d.read(process, int(a0), vm.VirtAddr(a1), int(a2)))
	case Write:
		return ret(d.write(process, int(a0), vm.VirtAddr(a1), int(a2)))
	case Exit:
		d.sys.Exit(initproc, task, int(int32(a0)))
		return 0
	case Sleep:
		d.sys.Sched.Sleep(d.sys.UptimeMs(), int64(a0))
		return 0
	case Yield:
		d.sys.Sched.Yield()
		return 0
	case Kill:
		return uint64(int64(d.sys.Kill(int(a0), proc.Signal(uint32(a1)))))
	case GetTime:
		return uint64(d.sys.UptimeMs())
	case Getpid:
		return uint64(process.Pid)
	case Fork:
		child := d.sys.Fork(process, d.body)
		return uint64(child.Pid)
	case Exec:
		return ret(d.exec(process, vm.VirtAddr(a0), vm.VirtAddr(a1)))
	case Waitpid:
		return d.waitpid(process, int(int32(a0)), vm.VirtAddr(a1))
	case ThreadCreate:
		worker := d.sys.ThreadCreate(process, vm.VirtAddr(a0), a1, d.body)
		return uint64(worker.Tid())
	case Gettid:
		return uint64(task.Tid())
	case Waittid:
		return d.waittid(process, task, int(a0))
	case MutexCreate:
		return uint64(d.mutexCreate(process, a0 != 0))
	case MutexLock:
		return uint64(d.syncOp(process.Mutex(int(a0)), func(m ksync.Mutex_i) { m.Lock() }))
	case MutexUnlock:
		return uint64(d.syncOp(process.Mutex(int(a0)), func(m ksync.Mutex_i) { m.Unlock() }))
	case SemaphoreCreate:
		return uint64(process.NewSemaphore(ksync.NewSemaphore(d.sys.KsyncSched(), int(a0))))
	case SemaphoreUp:
		return uint64(d.semOp(process.Semaphore(int(a0)), (*ksync.Semaphore).Up))
	case SemaphoreDown:
		return uint64(d.semOp(process.Semaphore(int(a0)), (*ksync.Semaphore).Down))
	case CondvarCreate:
		return uint64(process.NewCondvar(ksync.NewCondvar(d.sys.KsyncSched())))
	case CondvarSignal:
		return uint64(d.cvOp(process.Condvar(int(a0)), func(c *ksync.Condvar) { c.Signal() }))
	case CondvarWait:
		return uint64(d.condvarWait(process, int(a0), int(a1)))
	default:
		return ret(0, errno.ENOSYS)
	}
}

func ret(val int, err errno.Err_t) uint64 { return uint64(int64(errno.Rc(val, err))) }

// dup clones fd into the lowest free descriptor slot (spec §6's dup(fd)).
func (d *Dispatcher) dup(process *proc.ProcessControlBlock, fdNum int) (int, errno.Err_t) {
	process.Lock()
	defer process.Unlock()
	if fdNum < 0 || fdNum >= len(process.Fds) || process.Fds[fdNum] == nil {
		return 0, errno.EBADF
	}
	src := process.Fds[fdNum]
	dup, err := fd.Copyfd(src)
	if err != 0 {
		return 0, err
	}
	slot := process.AllocFd()
	process.Fds[slot] = dup
	return slot, 0
}

// open resolves path as a direct child of the filesystem root (spec
// §4.9's flat namespace — no chdir, no nested directories to walk),
// creating it when fd.O_CREATE is set and it doesn't yet exist, and
// installs an fd.OSInode at the lowest free descriptor slot.
func (d *Dispatcher) open(process *proc.ProcessControlBlock, pathVA vm.VirtAddr, flags int) (int, errno.Err_t) {
	process.Lock()
	as := process.AddressSpace
	process.Unlock()
	path := vm.ReadCString(as, pathVA)

	of := fd.OpenFlags(flags)
	inode, found := d.root.Find(path)
	if !found {
		if of&fd.O_CREATE == 0 {
			return 0, errno.ENOENT
		}
		var ok bool
		inode, ok = d.root.Create(path)
		if !ok {
			return 0, errno.EEXIST
		}
	} else if of&fd.O_TRUNC != 0 {
		inode.Clear()
	}

	readable, writable := of.ReadWrite()
	osInode := fd.NewOSInode(inode, readable, writable)

	process.Lock()
	defer process.Unlock()
	slot := process.AllocFd()
	perms := fd.FD_READ
	if writable {
		perms = fd.FD_WRITE
	}
	if readable && writable {
		perms = fd.FD_READ | fd.FD_WRITE
	}
	process.Fds[slot] = &fd.Fd_t{Fops: osInode, Perms: perms}
	return slot, 0
}

func (d *Dispatcher) close(process *proc.ProcessControlBlock, fdNum int) (int, errno.Err_t) {
	process.Lock()
	defer process.Unlock()
	if fdNum < 0 || fdNum >= len(process.Fds) || process.Fds[fdNum] == nil {
		return 0, errno.EBADF
	}
	f := process.Fds[fdNum]
	process.Fds[fdNum] = nil
	return 0, f.Fops.Close()
}

// pipe creates a connected read/write descriptor pair and writes their
// fd numbers back to user space as two little-endian 32-bit ints (spec
// §6: "pipe(&[rfd,wfd])").
func (d *Dispatcher) pipe(process *proc.ProcessControlBlock, out vm.VirtAddr) (int, errno.Err_t) {
	r, w, ok := fd.NewPipe(d.sys.KsyncSched())
	if !ok {
		return 0, errno.ENOMEM
	}

	process.Lock()
	rfd := process.AllocFd()
	process.Fds[rfd] = &fd.Fd_t{Fops: r, Perms: fd.FD_READ}
	wfd := process.AllocFd()
	process.Fds[wfd] = &fd.Fd_t{Fops: w, Perms: fd.FD_WRITE}
	as := process.AddressSpace
	process.Unlock()

	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(rfd))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(wfd))
	vm.NewUserBuffer(as, out, 8).Write(buf[:])
	return 0, 0
}

func (d *Dispatcher) read(process *proc.ProcessControlBlock, fdNum int, bufVA vm.VirtAddr, length int) (int, errno.Err_t) {
	process.Lock()
	if fdNum < 0 || fdNum >= len(process.Fds) || process.Fds[fdNum] == nil {
		process.Unlock()
		return 0, errno.EBADF
	}
	f := process.Fds[fdNum]
	as := process.AddressSpace
	process.Unlock()
	if !f.Fops.Readable() {
		return 0, errno.EINVAL
	}
	ub := vm.NewUserBuffer(as, bufVA, length)
	return f.Fops.Read(ub)
}

func (d *Dispatcher) write(process *proc.ProcessControlBlock, fdNum int, bufVA vm.VirtAddr, length int) (int, errno.Err_t) {
	process.Lock()
	if fdNum < 0 || fdNum >= len(process.Fds) || process.Fds[fdNum] == nil {
		process.Unlock()
		return 0, errno.EBADF
	}
	f := process.Fds[fdNum]
	as := process.AddressSpace
	process.Unlock()
	if !f.Fops.Writable() {
		return 0, errno.EINVAL
	}
	ub := vm.NewUserBuffer(as, bufVA, length)
	return f.Fops.Write(ub)
}

// readAll slurps an inode's full contents, for exec's "load the whole
// image before replacing the address space" step (original_source's
// OSInode::read_all).
func readAll(inode *fs.Inode) []byte {
	buf := make([]byte, inode.Size())
	inode.ReadAt(0, buf)
	return buf
}

// readArgv walks the NUL-terminated pointer array at argvVA, translating
// each pointer and reading the C string it names, stopping at the first
// zero entry (original_source/os/src/syscall/process.rs's sys_exec loop).
func readArgv(as *vm.AddressSpace, argvVA vm.VirtAddr) []string {
	var args []string
	cursor := argvVA
	for {
		var raw [8]byte
		vm.NewUserBuffer(as, cursor, 8).Read(raw[:])
		ptr := binary.LittleEndian.Uint64(raw[:])
		if ptr == 0 {
			break
		}
		args = append(args, vm.ReadCString(as, vm.VirtAddr(ptr)))
		cursor = vm.VirtAddr(uint64(cursor) + 8)
	}
	return args
}

// exec resolves path under the filesystem root, loads it whole, and
// replaces process's address space via proc.Exec, returning argc (spec
// §6: "a0=argc" is the exec syscall's own return value, since the
// syscall instruction itself never returns into the old image).
func (d *Dispatcher) exec(process *proc.ProcessControlBlock, pathVA, argvVA vm.VirtAddr) (int, errno.Err_t) {
	process.Lock()
	as := process.AddressSpace
	process.Unlock()

	path := vm.ReadCString(as, pathVA)
	args := readArgv(as, argvVA)

	inode, found := d.root.Find(path)
	if !found {
		return -1, errno.ENOENT
	}
	elfData := readAll(inode)
	if err := d.sys.Exec(process, elfData, args); err != nil {
		return -1, errno.EINVAL
	}
	return len(args), 0
}

func (d *Dispatcher) waitpid(process *proc.ProcessControlBlock, pid int, codeVA vm.VirtAddr) uint64 {
	foundPid, code, status := proc.WaitPid(process, pid)
	if status != 0 {
		return uint64(int64(foundPid))
	}
	process.Lock()
	as := process.AddressSpace
	process.Unlock()
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(int32(code)))
	vm.NewUserBuffer(as, codeVA, 4).Write(buf[:])
	return uint64(int64(foundPid))
}

func (d *Dispatcher) waittid(process *proc.ProcessControlBlock, caller *proc.TaskControlBlock, tid int) uint64 {
	code, _ := proc.WaitTid(process, caller, tid)
	return uint64(int64(code))
}

func (d *Dispatcher) mutexCreate(process *proc.ProcessControlBlock, blocking bool) int {
	var m ksync.Mutex_i
	if blocking {
		m = ksync.NewBlockingMutex(d.sys.KsyncSched())
	} else {
		m = ksync.NewSpinMutex(d.sys.KsyncSched())
	}
	return process.NewMutex(m)
}

func (d *Dispatcher) syncOp(m ksync.Mutex_i, f func(ksync.Mutex_i)) int {
	if m == nil {
		return -int(errno.EINVAL)
	}
	f(m)
	return 0
}

func (d *Dispatcher) semOp(s *ksync.Semaphore, f func(*ksync.Semaphore)) int {
	if s == nil {
		return -int(errno.EINVAL)
	}
	f(s)
	return 0
}

func (d *Dispatcher) cvOp(c *ksync.Condvar, f func(*ksync.Condvar)) int {
	if c == nil {
		return -int(errno.EINVAL)
	}
	f(c)
	return 0
}

func (d *Dispatcher) condvarWait(process *proc.ProcessControlBlock, condvarID, mutexID int) int {
	c := process.Condvar(condvarID)
	m := process.Mutex(mutexID)
	if c == nil || m == nil {
		return -int(errno.EINVAL)
	}
	c.Wait(m)
	return 0
}
