package ksync

import "sync"

// / Semaphore is a counting semaphore: Down blocks while the count is
// / negative after decrementing, Up wakes the head waiter if the count
// / was at or below zero after incrementing. count plus the number of
// / callers still inside Down equals initial + ups - downs, with downs
// / counting the Down calls that have returned (spec invariant 12). A
// / waiter woken by Up leaves waiters before its Down returns, so
// / len(waiters) alone can be smaller than that number of callers.
type Semaphore struct {
	inner   sync.Mutex
	sched   Sched_i
	count   int
	waiters []Task_i
}

/// NewSemaphore returns a semaphore starting at initial.
func NewSemaphore(sched Sched_i, initial int) *Semaphore {
	return &Semaphore{sched: sched, count: initial}
}

/// Up increments the count and, if a Down is waiting, wakes the oldest.
func (s *Semaphore) Up() {
	s.inner.Lock()
	s.count++
	var woken Task_i
	if s.count <= 0 && len(s.waiters) > 0 {
		woken = s.waiters[0]
		s.waiters = s.waiters[1:]
	}
	s.inner.Unlock()
	if woken != nil {
		s.sched.Wakeup(woken)
	}
}

/// Down decrements the count, blocking the caller if it goes negative.
func (s *Semaphore) Down() {
	s.inner.Lock()
	s.count--
	block := s.count < 0
	if block {
		s.waiters = append(s.waiters, s.sched.Current())
	}
	s.inner.Unlock()
	if block {
		s.sched.Block()
	}
}

/// Count reports the current signed count, for tests and diagnostics.
func (s *Semaphore) Count() int {
	s.inner.Lock()
	defer s.inner.Unlock()
	return s.count
}
