// Package workerpool runs fire-and-forget tasks on a bounded number of
// goroutines. Workers are started on demand, so a pool sized for the worst
// case costs nothing while idle.
package workerpool

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/infinite-dreams/igame-bootstrapper/internal/logging"
)

var log = logging.L("workerpool")

type Task func()

type Pool struct {
	maxWorkers int
	tasks      chan Task

	// Every queued task is matched by a receiving worker: Submit either
	// claims an idle worker, starts a new one or adds to backlog, which
	// a worker claims when it finishes its current task.
	mu      sync.Mutex
	closed  bool
	workers int
	idle    int
	backlog int

	pending sync.WaitGroup
}

// New creates a pool of at most maxWorkers goroutines in front of a queue
// holding queueSize tasks.
func New(maxWorkers, queueSize int) *Pool {
	return &Pool{
		maxWorkers: max(maxWorkers, 1),
		tasks:      make(chan Task, max(queueSize, 1)),
	}
}

// Submit queues task. It returns false once Shutdown was called or when the
// queue is full.
func (p *Pool) Submit(task Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	p.pending.Add(1)
	select {
	case p.tasks <- task:
	default:
		p.pending.Done()
		log.Warn("task queue full, task rejected", "queueSize", cap(p.tasks))
		return false
	}

	switch {
	case p.idle > 0:
		p.idle--
	case p.workers < p.maxWorkers:
		p.workers++
		go p.work()
	default:
		p.backlog++
	}
	return true
}

// Workers returns the number of started goroutines.
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// Shutdown stops accepting tasks and waits for the queued ones. It returns
// ctx.Err() if ctx ends first; the remaining tasks still run to completion
// in the background.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		log.Warn("pool shutdown interrupted with tasks still running")
		return ctx.Err()
	}
}

func (p *Pool) work() {
	for {
		task, ok := <-p.tasks
		if !ok {
			p.mu.Lock()
			p.workers--
			p.mu.Unlock()
			return
		}
		p.run(task)

		p.mu.Lock()
		if p.backlog > 0 {
			p.backlog--
		} else {
			p.idle++
		}
		p.mu.Unlock()
	}
}

func (p *Pool) run(task Task) {
	defer p.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	task()
}
