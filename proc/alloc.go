// Package proc implements the process and thread control blocks, their
// lifecycle operations (spawn, fork, exec, thread_create, exit, waitpid,
// waittid), and signal delivery described in spec §3/§4.7/§4.8. It sits
// above vm, trap, sched, ksync, and fd, wiring them into the process
// model the syscall layer dispatches against.
package proc

import "sync"

// RecycleAllocator hands out small non-negative ids, preferring a freed
// id over growing the bump counter (spec §3: "freed ids preferred over
// growing the counter"). Grounded on
// original_source/os/src/task/pid.rs's PidAllocator, generalized here
// since the same shape serves pid, tid, and kernel-stack-slot
// allocation (original_source allocates each of those with its own
// copy of this type).
type RecycleAllocator struct {
	mu       sync.Mutex
	current  int
	recycled []int
}

// NewRecycleAllocator returns an allocator starting at id 0.
func NewRecycleAllocator() *RecycleAllocator {
	return &RecycleAllocator{}
}

// Alloc pops the most recently freed id if any, else grows the counter.
func (a *RecycleAllocator) Alloc() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.recycled); n > 0 {
		id := a.recycled[n-1]
		a.recycled = a.recycled[:n-1]
		return id
	}
	id := a.current
	a.current++
	return id
}

// Dealloc returns id to the pool. Panics on a double free or an id that
// was never allocated, the same assertions PidAllocator::dealloc makes.
func (a *RecycleAllocator) Dealloc(id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id >= a.current {
		panic("proc: dealloc of never-allocated id")
	}
	for _, r := range a.recycled {
		if r == id {
			panic("proc: double free of id")
		}
	}
	a.recycled = append(a.recycled, id)
}
