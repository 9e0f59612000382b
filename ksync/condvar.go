package ksync

import "sync"

// / Condvar is a FIFO condition variable: Wait releases the caller's
// / mutex, blocks, and reacquires the mutex only after being woken —
// / never before, so there is no spurious-wakeup recheck loop required
// / of callers (spec §4.6, "spurious-wake-free"). Signal wakes exactly
// / one waiter per call and does nothing if none are queued (lost-wakeup
// / freedom, invariant 13, holds only for a Signal issued after the
// / matching Wait has already enqueued itself — see Wait's ordering).
type Condvar struct {
	inner   sync.Mutex
	sched   Sched_i
	waiters []Task_i
}

/// NewCondvar returns an empty condition variable.
func NewCondvar(sched Sched_i) *Condvar {
	return &Condvar{sched: sched}
}

/// Wait unlocks mtx, blocks the caller until Signal wakes it, then
/// reacquires mtx before returning. The caller is enqueued before mtx is
/// unlocked, so a Signal racing the unlock still finds the waiter queued.
func (c *Condvar) Wait(mtx Mutex_i) {
	c.inner.Lock()
	c.waiters = append(c.waiters, c.sched.Current())
	c.inner.Unlock()

	mtx.Unlock()
	c.sched.Block()
	mtx.Lock()
}

/// Signal wakes the oldest waiter, if any.
func (c *Condvar) Signal() {
	c.inner.Lock()
	var woken Task_i
	if len(c.waiters) > 0 {
		woken = c.waiters[0]
		c.waiters = c.waiters[1:]
	}
	c.inner.Unlock()
	if woken != nil {
		c.sched.Wakeup(woken)
	}
}
