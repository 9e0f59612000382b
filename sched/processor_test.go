package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type testTask struct {
	name   string
	handle *Handle
}

func (t *testTask) Handle() *Handle { return t.handle }

func newTestTask(name string, body func(t *testTask)) *testTask {
	t := &testTask{name: name}
	t.handle = NewHandle(func() { body(t) })
	return t
}

// TestSchedulerFairnessFIFO exercises invariant 10: n Ready tasks issuing
// only yield each execute at least once before any executes twice.
func TestSchedulerFairnessFIFO(t *testing.T) {
	p := NewProcessor()
	const n = 5
	runs := make([]int, n)
	order := []int{}

	for i := 0; i < n; i++ {
		i := i
		task := newTestTask("t", func(self *testTask) {
			for j := 0; j < 3; j++ {
				runs[i]++
				order = append(order, i)
				p.Yield()
			}
		})
		p.AddTask(task)
	}
	p.RunTasks()

	for i := 0; i < n; i++ {
		assert.Equal(t, 3, runs[i])
	}
	// Every task runs once before any runs a second time.
	assert.Equal(t, []int{0, 1, 2, 3, 4, 0, 1, 2, 3, 4, 0, 1, 2, 3, 4}, order)
}

func TestWakeupOnReadyIsNoop(t *testing.T) {
	p := NewProcessor()
	order := []string{}

	a := newTestTask("a", func(self *testTask) {
		order = append(order, "a-ran")
	})
	p.AddTask(a)
	// a is already Ready; waking it must not duplicate it in the queue.
	p.Wakeup(a)
	p.RunTasks()

	assert.Equal(t, []string{"a-ran"}, order)
}

func TestBlockThenWakeupResumes(t *testing.T) {
	p := NewProcessor()
	order := []string{}
	var waiter *testTask

	waiter = newTestTask("waiter", func(self *testTask) {
		order = append(order, "before-block")
		p.Block()
		order = append(order, "after-wakeup")
	})
	p.AddTask(waiter)

	waker := newTestTask("waker", func(self *testTask) {
		order = append(order, "waker-ran")
		p.Wakeup(waiter)
	})
	p.AddTask(waker)

	p.RunTasks()

	assert.Equal(t, []string{"before-block", "waker-ran", "after-wakeup"}, order)
}

func TestRemoveTaskNotPresentIsNoop(t *testing.T) {
	p := NewProcessor()
	task := newTestTask("solo", func(self *testTask) {})
	assert.NotPanics(t, func() { p.RemoveTask(task) })
}

func TestSleepWakesInDeadlineOrder(t *testing.T) {
	p := NewProcessor()
	order := []string{}

	spawnSleeper := func(name string, ms int64) {
		p.AddTask(newTestTask(name, func(self *testTask) {
			p.Sleep(0, ms)
			order = append(order, name)
		}))
	}
	spawnSleeper("30ms", 30)
	spawnSleeper("10ms", 10)
	spawnSleeper("20ms", 20)

	// Run until every sleeper has parked in the timer heap.
	p.RunTasks()
	assert.Empty(t, order)

	p.CheckTimer(35)
	p.RunTasks()

	assert.Equal(t, []string{"10ms", "20ms", "30ms"}, order)
}
