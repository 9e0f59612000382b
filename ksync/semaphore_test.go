package ksync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSemaphoreConservation exercises invariant 12: count + len(waiters)
// always equals initial + ups - downs, checked at every Up/Down boundary
// by reading the field directly (the test lives in this package for
// that reason).
func TestSemaphoreConservation(t *testing.T) {
	s := newFakeSched()
	sem := NewSemaphore(s, 2)
	ups, downs := 0, 0

	check := func() {
		assert.Equal(t, 2+ups-downs, sem.count+len(sem.waiters))
	}

	for i := 0; i < 3; i++ {
		s.spawn("consumer", func(sched *fakeSched, self *fakeTask) {
			sem.Down()
			downs++
			check()
			sched.Yield()
			sem.Up()
			ups++
			check()
		})
	}
	s.run()
	assert.Equal(t, 2, sem.Count())
	assert.Empty(t, sem.waiters)
}

// TestSemaphoreBlocksWhenExhausted exercises the case where Down must
// park the caller: a semaphore starting at 0 always blocks its first
// waiter until a later Up.
func TestSemaphoreBlocksWhenExhausted(t *testing.T) {
	s := newFakeSched()
	sem := NewSemaphore(s, 0)
	order := []string{}

	s.spawn("waiter", func(sched *fakeSched, self *fakeTask) {
		sem.Down()
		order = append(order, "waiter-resumed")
	})
	s.spawn("signaler", func(sched *fakeSched, self *fakeTask) {
		order = append(order, "signaler-ran")
		sem.Up()
	})
	s.run()

	assert.Equal(t, []string{"signaler-ran", "waiter-resumed"}, order)
	assert.Equal(t, 0, sem.Count())
}
