package sched

import (
	"sync"

	"rvkernel/ksync"
)

// Processor holds the currently running task and the Ready FIFO for a
// single hart (spec §4.5: "One Processor per CPU (single-hart here)").
// It implements ksync.Sched_i, so any ksync primitive constructed with a
// *Processor drives real scheduling decisions.
type Processor struct {
	mu      sync.Mutex
	current Task
	ready   []Task
	started map[*Handle]bool

	timerMu sync.Mutex
	timers  timerHeap
}

// NewProcessor returns an idle Processor with an empty ready queue.
func NewProcessor() *Processor {
	return &Processor{started: make(map[*Handle]bool)}
}

// AddTask enqueues t as Ready, starting its goroutine the first time it
// is seen. A task already Ready or Running is not re-enqueued (mirrors
// Wakeup's idempotency; a task is only ever added once in practice, at
// creation, but AddTask is defensive the same way).
func (p *Processor) AddTask(t Task) {
	h := t.Handle()
	p.mu.Lock()
	if !p.started[h] {
		p.started[h] = true
		p.mu.Unlock()
		go func() {
			<-h.turn
			h.body()
			p.finish(t)
		}()
		p.mu.Lock()
	} else if s := h.Status(); s == StatusReady || s == StatusRunning {
		p.mu.Unlock()
		return
	}
	h.setStatus(StatusReady)
	p.ready = append(p.ready, t)
	p.mu.Unlock()
}

// RemoveTask drops t from the ready queue if present; a no-op otherwise
// (spec §4.5 idempotency requirement).
func (p *Processor) RemoveTask(t Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, r := range p.ready {
		if r.Handle() == t.Handle() {
			p.ready = append(p.ready[:i], p.ready[i+1:]...)
			return
		}
	}
}

func (p *Processor) finish(t Task) {
	t.Handle().setStatus(StatusZombie)
	t.Handle().done <- struct{}{}
}

// Current returns the task presently running on this Processor, or nil
// if called outside of RunTasks driving a task's goroutine.
func (p *Processor) Current() ksync.Task_i {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	return p.current
}

// CurrentTask is the typed equivalent of Current, for callers (package
// proc) that need the concrete Task back rather than ksync.Task_i.
func (p *Processor) CurrentTask() Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Yield suspends the calling task: marks it Ready and re-enqueues it,
// then hands control back to the Processor's driver loop (spec §4.5's
// "suspend").
func (p *Processor) Yield() {
	t := p.CurrentTask()
	h := t.Handle()
	p.mu.Lock()
	h.setStatus(StatusReady)
	p.ready = append(p.ready, t)
	p.mu.Unlock()
	p.pauseSelf(h)
}

// Block suspends the calling task without re-enqueuing it (spec §4.5's
// "block"); the task only runs again once something calls Wakeup on it.
func (p *Processor) Block() {
	t := p.CurrentTask()
	h := t.Handle()
	h.setStatus(StatusBlocked)
	p.pauseSelf(h)
}

// pauseSelf, called from the task's own goroutine, hands control back to
// the driver and waits to be resumed.
func (p *Processor) pauseSelf(h *Handle) {
	h.done <- struct{}{}
	<-h.turn
}

// Wakeup marks t Ready and enqueues it; a no-op if t is already Ready or
// Running (spec §4.5 idempotency requirement).
func (p *Processor) Wakeup(ti ksync.Task_i) {
	t, ok := ti.(Task)
	if !ok {
		return
	}
	h := t.Handle()
	p.mu.Lock()
	defer p.mu.Unlock()
	if t == p.current || h.Status() != StatusBlocked {
		return
	}
	h.setStatus(StatusReady)
	p.ready = append(p.ready, t)
}

// RunTasks is the driver loop: repeatedly fetch the head of the ready
// queue, run it until it pauses or exits, and fetch the next one. It
// returns once the ready queue empties, handing the "shutdown" decision
// to the caller (spec Non-goals: "shutdown ... called, not designed").
func (p *Processor) RunTasks() {
	for {
		p.mu.Lock()
		if len(p.ready) == 0 {
			p.mu.Unlock()
			return
		}
		t := p.ready[0]
		p.ready = p.ready[1:]
		p.current = t
		p.mu.Unlock()

		h := t.Handle()
		h.setStatus(StatusRunning)
		h.turn <- struct{}{}
		<-h.done

		p.mu.Lock()
		p.current = nil
		p.mu.Unlock()
	}
}
