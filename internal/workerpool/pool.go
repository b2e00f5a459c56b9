// Package workerpool runs tasks on a bounded set of goroutines fed by a
// bounded queue.
//
// Design decisions:
//   - Saturation: when the queue is full, Submit hands the task to a fresh
//     goroutine so the caller is never suspended, while SubmitOrRun runs it on
//     the calling goroutine. Neither blocks on the queue
//   - Helping join: Await runs queued tasks while it waits, so a task that
//     blocks on work it submitted itself cannot starve the pool. Callers
//     outside the pool use Wait, which never runs tasks
//   - Best-effort drain: Stop closes the queue and waits for in-flight tasks
//     up to a deadline, then returns regardless
//   - Panic isolation: a panicking task is recovered and reported, the worker
//     keeps running
package workerpool

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrNotRunning     = errors.New("worker pool is not running")
	ErrAlreadyRunning = errors.New("worker pool is already running")
	ErrClosed         = errors.New("worker pool is closed")
	ErrDrainTimeout   = errors.New("worker pool drain timed out")
)

const defaultQueueSize = 1024

// Task is a unit of work.
type Task func()

// PanicHandler receives the value and stack of a panic recovered from a task.
type PanicHandler func(value any, stack []byte)

type Option func(*Pool)

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets the capacity of the task queue.
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithPanicHandler sets the function called when a task panics.
func WithPanicHandler(h PanicHandler) Option {
	return func(p *Pool) {
		p.panicHandler = h
	}
}

type state int32

const (
	stateNew state = iota
	stateRunning
	stateClosed
)

// Stats is a point-in-time view of the pool counters.
type Stats struct {
	Submitted uint64
	Inline    uint64
	Overflow  uint64
	Completed uint64
	Panicked  uint64
}

type Pool struct {
	workers      int
	queueSize    int
	panicHandler PanicHandler

	// mu guards state transitions and sends on queue
	mu       sync.RWMutex
	state    state
	queue    chan Task
	workerWG sync.WaitGroup
	inflight sync.WaitGroup

	submitted atomic.Uint64
	inline    atomic.Uint64
	overflow  atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
}

func New(opts ...Option) *Pool {
	p := &Pool{
		workers:   runtime.GOMAXPROCS(0),
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Workers returns the configured number of worker goroutines.
func (p *Pool) Workers() int { return p.workers }

// Start launches the workers.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateRunning:
		return ErrAlreadyRunning
	case stateClosed:
		return ErrClosed
	}

	p.queue = make(chan Task, p.queueSize)
	p.state = stateRunning
	for range p.workers {
		p.workerWG.Add(1)
		go p.worker(p.queue)
	}
	return nil
}

// Running reports whether the pool accepts submissions.
func (p *Pool) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state == stateRunning
}

// Submit schedules task. When the queue is full the task runs on its own
// goroutine; Submit never runs task itself.
func (p *Pool) Submit(task Task) error {
	return p.submit(task, false)
}

// SubmitOrRun schedules task. When the queue is full the task runs on the
// calling goroutine before SubmitOrRun returns.
func (p *Pool) SubmitOrRun(task Task) error {
	return p.submit(task, true)
}

func (p *Pool) submit(task Task, callerRuns bool) error {
	p.mu.RLock()
	if p.state != stateRunning {
		p.mu.RUnlock()
		return ErrNotRunning
	}
	p.inflight.Add(1)
	p.submitted.Add(1)
	wrapped := func() {
		defer p.inflight.Done()
		p.run(task)
	}
	select {
	case p.queue <- wrapped:
		p.mu.RUnlock()
		return nil
	default:
	}
	if !callerRuns {
		p.overflow.Add(1)
		go wrapped()
		p.mu.RUnlock()
		return nil
	}
	p.mu.RUnlock()

	p.inline.Add(1)
	wrapped()
	return nil
}

// Wait blocks until done is closed or ctx is done.
func Wait(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	default:
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Await blocks until done is closed or ctx is done. While waiting it runs
// tasks taken from the queue, so ctx is only checked between tasks.
func (p *Pool) Await(ctx context.Context, done <-chan struct{}) error {
	p.mu.RLock()
	queue := p.queue
	p.mu.RUnlock()

	for {
		select {
		case <-done:
			return nil
		default:
		}

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case task, ok := <-queue:
			if !ok {
				queue = nil
				continue
			}
			task()
		}
	}
}

// Stop refuses further submissions and waits for in-flight tasks. It returns
// ErrDrainTimeout when timeout elapses first, or the context error when ctx
// ends first. A non-positive timeout waits on ctx alone.
func (p *Pool) Stop(ctx context.Context, timeout time.Duration) error {
	p.mu.Lock()
	if p.state != stateRunning {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.state = stateClosed
	close(p.queue)
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.inflight.Wait()
		p.workerWG.Wait()
		close(drained)
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-drained:
		return nil
	case <-deadline:
		return ErrDrainTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Inline:    p.inline.Load(),
		Overflow:  p.overflow.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
	}
}

func (p *Pool) worker(queue <-chan Task) {
	defer p.workerWG.Done()
	for task := range queue {
		task()
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		p.completed.Add(1)
		if r := recover(); r != nil {
			p.panicked.Add(1)
			stack := debug.Stack()
			if p.panicHandler != nil {
				func() {
					defer func() { _ = recover() }()
					p.panicHandler(r, stack)
				}()
			}
		}
	}()
	task()
}
