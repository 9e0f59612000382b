// Package ksync implements the kernel's three blocking synchronization
// primitives (mutex, semaphore, condition variable) plus a spinning
// mutex variant, all integrated with the scheduler through a small
// interface rather than a direct import — the same cycle-breaking
// pattern the teacher uses for Disk_i/Page_i/Fdops_i (packages fs, mem,
// fdops) to let a low-level package call up into a higher one without a
// Go import cycle.
package ksync

// / Sched_i is the slice of scheduler behavior a synchronization
// / primitive needs: enough to park the caller and wake someone else.
// / package sched's Processor satisfies this; package proc's per-process
// / mutex/semaphore/condvar tables are constructed with it.
type Sched_i interface {
	// / Current returns the handle of the calling task. A primitive
	// / pushes this onto its own wait queue *before* calling Block, so
	// / that a concurrent Wakeup can never target a task not yet
	// / queued (spec's wakeup/block ordering guarantee).
	Current() Task_i

	// / Block marks the calling task Blocked (not enqueued anywhere by
	// / the scheduler itself) and switches away, returning only once
	// / something calls Wakeup on it.
	Block()

	// / Yield suspends the calling task (Ready, re-enqueued) and
	// / switches to the next task, returning when rescheduled.
	Yield()

	// / Wakeup marks t Ready and enqueues it if it wasn't already.
	// / Idempotent: waking an already-Ready task is a no-op.
	Wakeup(Task_i)
}

// / Task_i is an opaque scheduler task handle; synchronization
// / primitives never look inside it.
type Task_i interface{}
