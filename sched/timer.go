package sched

import "container/heap"

// timerEntry pairs a deadline with the task to wake, mirroring
// original_source/os/src/timer/mod.rs's TimerCondVar.
type timerEntry struct {
	expireMs int64
	task     Task
}

// timerHeap is a min-heap on expireMs (container/heap sorts ascending by
// Less, unlike the Rust original's max-heap-wrapped-in-reversed-Ord).
type timerHeap []timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].expireMs < h[j].expireMs }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(timerEntry)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Sleep inserts (nowMs+durationMs, caller) into the timer heap and then
// blocks the caller, the way spec §4.5 describes sleep(ms).
func (p *Processor) Sleep(nowMs, durationMs int64) {
	t := p.CurrentTask()
	p.timerMu.Lock()
	heap.Push(&p.timers, timerEntry{expireMs: nowMs + durationMs, task: t})
	p.timerMu.Unlock()
	p.Block()
}

// CheckTimer wakes every task whose deadline is at or before nowMs,
// popping them off the heap smallest-first and stopping at the first
// entry still in the future (spec §4.5).
func (p *Processor) CheckTimer(nowMs int64) {
	p.timerMu.Lock()
	var due []Task
	for len(p.timers) > 0 && p.timers[0].expireMs <= nowMs {
		due = append(due, heap.Pop(&p.timers).(timerEntry).task)
	}
	p.timerMu.Unlock()
	for _, t := range due {
		p.Wakeup(t)
	}
}

// RemoveTimer scans the whole heap and drops any entry for t, identified
// by Handle pointer identity; O(n), matching spec §4.5's stated removal
// cost. Used when a task is cancelled (exit, or a killing signal) while
// it still holds a pending sleep.
func (p *Processor) RemoveTimer(t Task) {
	p.timerMu.Lock()
	defer p.timerMu.Unlock()
	kept := p.timers[:0]
	for _, e := range p.timers {
		if e.task.Handle() != t.Handle() {
			kept = append(kept, e)
		}
	}
	p.timers = kept
	heap.Init(&p.timers)
}
