package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func shutdown(t *testing.T, p *Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestSubmitAndShutdown(t *testing.T) {
	p := New(2, 10)
	var count atomic.Int32
	for i := 0; i < 5; i++ {
		if !p.Submit(func() { count.Add(1) }) {
			t.Fatalf("Submit %d failed", i)
		}
	}
	shutdown(t, p)
	if got := count.Load(); got != 5 {
		t.Fatalf("count = %d, want 5", got)
	}
}

func TestNoWorkersUntilFirstTask(t *testing.T) {
	p := New(3, 3)
	if got := p.Workers(); got != 0 {
		t.Fatalf("workers = %d before any task", got)
	}

	release := make(chan struct{})
	for i := 0; i < 3; i++ {
		p.Submit(func() { <-release })
	}
	if got := p.Workers(); got < 1 || got > 3 {
		t.Fatalf("workers = %d, want 1..3", got)
	}
	close(release)
	shutdown(t, p)

	deadline := time.Now().Add(5 * time.Second)
	for p.Workers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("workers still running after shutdown: %d", p.Workers())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSubmitAfterShutdownReturnsFalse(t *testing.T) {
	p := New(1, 1)
	shutdown(t, p)
	if p.Submit(func() {}) {
		t.Fatal("Submit accepted a task after Shutdown")
	}
	// A second Shutdown is harmless.
	shutdown(t, p)
}

func TestQueueFullReturnsFalse(t *testing.T) {
	p := New(1, 1)
	started := make(chan struct{})
	release := make(chan struct{})

	if !p.Submit(func() {
		close(started)
		<-release
	}) {
		t.Fatal("first Submit failed")
	}
	<-started
	if !p.Submit(func() {}) {
		t.Fatal("queued Submit failed")
	}
	if p.Submit(func() {}) {
		t.Fatal("Submit accepted a task with a full queue")
	}
	close(release)
	shutdown(t, p)
}

func TestShutdownRespectsContext(t *testing.T) {
	p := New(1, 1)
	release := make(chan struct{})
	defer close(release)
	p.Submit(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown = %v, want deadline exceeded", err)
	}
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	p := New(1, 2)
	var ran atomic.Bool
	p.Submit(func() { panic("installer crashed") })
	p.Submit(func() { ran.Store(true) })
	shutdown(t, p)
	if !ran.Load() {
		t.Fatal("task after a panic did not run")
	}
}

func TestTasksRunConcurrently(t *testing.T) {
	const n = 3
	p := New(n, n)
	var running, peak atomic.Int32
	release := make(chan struct{})
	allIn := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		p.Submit(func() {
			cur := running.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			allIn <- struct{}{}
			<-release
			running.Add(-1)
		})
	}

	timeout := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-allIn:
		case <-timeout:
			t.Fatalf("only %d of %d tasks started", i, n)
		}
	}
	close(release)
	shutdown(t, p)
	if got := peak.Load(); got != n {
		t.Fatalf("peak concurrency = %d, want %d", got, n)
	}
}
