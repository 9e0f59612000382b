package ksync

import "sync"

// / Mutex_i is satisfied by both mutex flavors, so callers (and the
// / per-process mutex table in package proc) can hold either behind one
// / interface, the way spec §4.6 treats them as interchangeable at the
// / syscall boundary (mutex_create(blocking)).
type Mutex_i interface {
	Lock()
	Unlock()
}

// / SpinMutex loops acquiring a lock word, releasing its own inner lock
// / and yielding between attempts. Used when contention is expected to
// / be brief — it never parks the caller off the ready queue.
type SpinMutex struct {
	inner sync.Mutex
	sched Sched_i
	held  bool
}

/// NewSpinMutex returns an unlocked spin mutex driven by sched.
func NewSpinMutex(sched Sched_i) *SpinMutex {
	return &SpinMutex{sched: sched}
}

/// Lock loops: take the lock if free; otherwise release, yield, retry.
func (m *SpinMutex) Lock() {
	for {
		m.inner.Lock()
		if !m.held {
			m.held = true
			m.inner.Unlock()
			return
		}
		m.inner.Unlock()
		m.sched.Yield()
	}
}

/// Unlock releases the lock.
func (m *SpinMutex) Unlock() {
	m.inner.Lock()
	m.held = false
	m.inner.Unlock()
}

// / BlockingMutex either takes the lock immediately or parks the caller
// / on a FIFO waiter queue; unlock hands the lock directly to the head
// / waiter (if any) rather than clearing the flag for someone new to
// / race for it — the lock is never observably free between a waiter
// / being woken and it running.
type BlockingMutex struct {
	inner   sync.Mutex
	sched   Sched_i
	locked  bool
	waiters []Task_i
}

/// NewBlockingMutex returns an unlocked blocking mutex driven by sched.
func NewBlockingMutex(sched Sched_i) *BlockingMutex {
	return &BlockingMutex{sched: sched}
}

/// Lock takes the mutex if free; otherwise enqueues the caller and
/// blocks. The caller is pushed onto the waiter queue before the inner
/// lock is released and before Block is called, so a concurrent Unlock
/// can never miss it (spec's wakeup/block ordering guarantee) — and the
/// inner lock is always released before any call that may itself block
/// or reschedule, per the "never block while holding a primitive's own
/// lock" rule (spec §4.6).
func (m *BlockingMutex) Lock() {
	m.inner.Lock()
	if !m.locked {
		m.locked = true
		m.inner.Unlock()
		return
	}
	m.waiters = append(m.waiters, m.sched.Current())
	m.inner.Unlock()
	m.sched.Block()
}

/// Unlock wakes the head waiter (transferring ownership to it) if any
/// are queued, else marks the mutex free.
func (m *BlockingMutex) Unlock() {
	m.inner.Lock()
	if len(m.waiters) > 0 {
		next := m.waiters[0]
		m.waiters = m.waiters[1:]
		m.inner.Unlock()
		m.sched.Wakeup(next)
		return
	}
	m.locked = false
	m.inner.Unlock()
}
