// Package sched implements the scheduler and per-CPU state described in
// spec §4.5: one Processor holding the currently running task, a FIFO
// ready queue, and a sleep-timer min-heap. There is exactly one hart, so
// switching is always "current task gives up control, Processor picks
// the next Ready task" — there is no real register-context switch to
// perform (package vm/trap own the on-disk trap frame; this package
// only orders *which* task runs next), so each task's body runs on its
// own goroutine and a pair of channels stands in for the two-step
// task -> idle -> task switch original_source/os/src/task/scheduler
// drives with inline assembly.
package sched

import "sync"

// Status is a task's scheduling state (spec §4.5).
type Status int

const (
	StatusReady Status = iota
	StatusRunning
	StatusBlocked
	StatusZombie
)

// Task is satisfied by anything the scheduler can run. Handle returns the
// scheduler-visible half of the task; give your task type a *Handle field
// that Handle returns (see proc.TaskControlBlock) so identity survives
// comparisons.
type Task interface {
	Handle() *Handle
}

// Handle is the scheduler-visible state of one task: its status and the
// pair of channels used to hand control between the task's own goroutine
// and the Processor's driver loop.
type Handle struct {
	mu     sync.Mutex
	status Status
	turn   chan struct{} // Processor -> task: "you may run now"
	done   chan struct{} // task -> Processor: "my quantum ended"
	body   func()
}

// NewHandle wraps body, the function the scheduler runs on the task's
// goroutine. body must itself call back into a Sched_i (typically the
// Processor that spawned it) to yield, block, or simply return when the
// task is done.
func NewHandle(body func()) *Handle {
	return &Handle{status: StatusReady, turn: make(chan struct{}), done: make(chan struct{}), body: body}
}

func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *Handle) setStatus(s Status) {
	h.mu.Lock()
	h.status = s
	h.mu.Unlock()
}
