package proc

import (
	"sync"

	"rvkernel/fd"
	"rvkernel/ksync"
	"rvkernel/trap"
	"rvkernel/vm"
)

// ProcessControlBlock is one process: its address space, descriptor
// table, family links, signal state, and thread table (spec §3
// "ProcessControlBlock"). Grounded on
// original_source/os/src/task/process/mod.rs's
// ProcessControlBlock{,Inner}, with the RefCell-guarded inner split
// folded into one struct behind a single mutex — this kernel has no
// interrupt-reentrancy to guard against (Non-goals), so the teacher's
// UPSafeCell split buys nothing extra here.
type ProcessControlBlock struct {
	mu sync.Mutex

	Pid           int
	AddressSpace  *vm.AddressSpace
	Parent        *ProcessControlBlock
	Children      []*ProcessControlBlock
	Zombie        bool
	ExitCode      int
	Fds           []*fd.Fd_t

	Tasks     []*TaskControlBlock
	tidAlloc  *RecycleAllocator

	Pending        Signal
	Blocked        Signal
	Actions        *SignalActionTable
	HandlingSignal     int // -1 when not currently handling one
	Killed             bool
	Frozen             bool
	SavedTrapFrame     *trap.Frame
	PreHandlingBlocked Signal // Blocked mask to restore on sigreturn

	Mutexes    []ksync.Mutex_i
	Semaphores []*ksync.Semaphore
	Condvars   []*ksync.Condvar
}

func newProcessControlBlock(pid int, as *vm.AddressSpace) *ProcessControlBlock {
	return &ProcessControlBlock{
		Pid:            pid,
		AddressSpace:   as,
		Actions:        NewSignalActionTable(),
		HandlingSignal: -1,
		tidAlloc:       NewRecycleAllocator(),
	}
}

// Lock/Unlock expose the PCB's own mutex directly to lifecycle.go, which
// coordinates multi-field updates (children lists, fd tables, signal
// state) that don't belong split across several finer locks given this
// kernel's single-hart execution model (spec §5).
func (p *ProcessControlBlock) Lock()   { p.mu.Lock() }
func (p *ProcessControlBlock) Unlock() { p.mu.Unlock() }

// AllocTid hands out the next free thread id within this process.
func (p *ProcessControlBlock) AllocTid() int { return p.tidAlloc.Alloc() }

// DeallocTid returns tid to this process's thread-id pool.
func (p *ProcessControlBlock) DeallocTid(tid int) { p.tidAlloc.Dealloc(tid) }

// ThreadCount reports the number of live (non-nil) thread slots.
func (p *ProcessControlBlock) ThreadCount() int {
	n := 0
	for _, t := range p.Tasks {
		if t != nil {
			n++
		}
	}
	return n
}

// GetTask returns the thread at tid, or nil if it has exited.
func (p *ProcessControlBlock) GetTask(tid int) *TaskControlBlock {
	if tid < 0 || tid >= len(p.Tasks) {
		return nil
	}
	return p.Tasks[tid]
}

// setTask installs t at its own tid slot, growing the table if needed.
func (p *ProcessControlBlock) setTask(t *TaskControlBlock) {
	for len(p.Tasks) <= t.tid {
		p.Tasks = append(p.Tasks, nil)
	}
	p.Tasks[t.tid] = t
}

// AllocFd returns the first free descriptor slot, reusing a closed
// hole before growing the table (spec §3: "fd table with reused
// holes").
func (p *ProcessControlBlock) AllocFd() int {
	for i, f := range p.Fds {
		if f == nil {
			return i
		}
	}
	p.Fds = append(p.Fds, nil)
	return len(p.Fds) - 1
}

// NewMutex installs m at the first free slot of this process's mutex
// table, returning the id a syscall hands back to user space (spec §6's
// mutex_create), reusing freed slots the same way AllocFd does.
func (p *ProcessControlBlock) NewMutex(m ksync.Mutex_i) int {
	for i, existing := range p.Mutexes {
		if existing == nil {
			p.Mutexes[i] = m
			return i
		}
	}
	p.Mutexes = append(p.Mutexes, m)
	return len(p.Mutexes) - 1
}

// Mutex returns the mutex registered under id, or nil if none is.
func (p *ProcessControlBlock) Mutex(id int) ksync.Mutex_i {
	if id < 0 || id >= len(p.Mutexes) {
		return nil
	}
	return p.Mutexes[id]
}

// NewSemaphore installs s at the first free slot of this process's
// semaphore table (spec §6's semaphore_create).
func (p *ProcessControlBlock) NewSemaphore(s *ksync.Semaphore) int {
	for i, existing := range p.Semaphores {
		if existing == nil {
			p.Semaphores[i] = s
			return i
		}
	}
	p.Semaphores = append(p.Semaphores, s)
	return len(p.Semaphores) - 1
}

// Semaphore returns the semaphore registered under id, or nil if none is.
func (p *ProcessControlBlock) Semaphore(id int) *ksync.Semaphore {
	if id < 0 || id >= len(p.Semaphores) {
		return nil
	}
	return p.Semaphores[id]
}

// NewCondvar installs c at the first free slot of this process's condvar
// table (spec §6's condvar_create).
func (p *ProcessControlBlock) NewCondvar(c *ksync.Condvar) int {
	for i, existing := range p.Condvars {
		if existing == nil {
			p.Condvars[i] = c
			return i
		}
	}
	p.Condvars = append(p.Condvars, c)
	return len(p.Condvars) - 1
}

// Condvar returns the condvar registered under id, or nil if none is.
func (p *ProcessControlBlock) Condvar(id int) *ksync.Condvar {
	if id < 0 || id >= len(p.Condvars) {
		return nil
	}
	return p.Condvars[id]
}
