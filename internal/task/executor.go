// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

// Package task provides a bounded worker pool for running plugin work off
// the host's main goroutine. Submitted tasks queue without limit and are
// picked up by a fixed number of workers; completion is reported through
// per-task callbacks in a fixed order (result or error, then finished).
package task

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultMaxWorkers is used when the executor is constructed with a
// non-positive worker count.
const DefaultMaxWorkers = 4

// Func is a unit of work. The context is cancelled when the executor
// closes; long-running tasks should honor it.
type Func func(ctx context.Context) (any, error)

// Callbacks receive the outcome of a task. All callbacks are optional.
// Exactly one of OnResult or OnError fires, followed by OnFinished, from
// the worker goroutine that ran the task, or from Close for tasks dropped
// before starting.
type Callbacks struct {
	OnResult   func(result any)
	OnError    func(err error)
	OnFinished func()
}

// Handle identifies a submitted task.
type Handle struct {
	id       string
	callbacks *callbackState
}

// ID returns the task's unique identifier.
func (h Handle) ID() string { return h.id }

// Discard detaches the task's callbacks. The task itself still runs to
// completion; only the notifications are dropped.
func (h Handle) Discard() {
	if h.callbacks != nil {
		h.callbacks.discard()
	}
}

type callbackState struct {
	mu        sync.Mutex
	cb        Callbacks
	discarded bool
}

func (s *callbackState) discard() {
	s.mu.Lock()
	s.discarded = true
	s.cb = Callbacks{}
	s.mu.Unlock()
}

func (s *callbackState) load() (Callbacks, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cb, !s.discarded
}

type queuedTask struct {
	id        string
	fn        Func
	callbacks *callbackState
}

// Executor runs tasks on a fixed pool of worker goroutines.
type Executor struct {
	logger *slog.Logger

	mu      sync.Mutex
	queue   []queuedTask
	cond    *sync.Cond
	pending int // queued + running
	closed  bool
	idle    chan struct{} // closed and replaced as pending transitions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	maxWorkers int
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for panic reports.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an executor with the given number of workers.
func NewExecutor(maxWorkers int, opts ...Option) *Executor {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		logger:     slog.Default(),
		maxWorkers: maxWorkers,
		ctx:        ctx,
		cancel:     cancel,
		idle:       closedChan(),
	}
	e.cond = sync.NewCond(&e.mu)
	for i := 0; i < maxWorkers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// MaxWorkers returns the size of the worker pool.
func (e *Executor) MaxWorkers() int { return e.maxWorkers }

// Submit queues fn for execution and returns a handle for it. Submitting
// after Close returns a zero Handle and the task is dropped.
func (e *Executor) Submit(fn Func, cb Callbacks) Handle {
	state := &callbackState{cb: cb}
	id := ulid.Make().String()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return Handle{}
	}
	if e.pending == 0 {
		e.idle = make(chan struct{})
	}
	e.pending++
	e.queue = append(e.queue, queuedTask{id: id, fn: fn, callbacks: state})
	e.cond.Signal()
	e.mu.Unlock()

	return Handle{id: id, callbacks: state}
}

// Pending reports how many tasks are queued or running.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// WaitForIdle blocks until no tasks are queued or running, or until the
// timeout elapses. It reports whether the executor reached idle. A
// non-positive timeout waits indefinitely.
func (e *Executor) WaitForIdle(timeout time.Duration) bool {
	e.mu.Lock()
	idle := e.idle
	e.mu.Unlock()

	if timeout <= 0 {
		<-idle
		return true
	}
	select {
	case <-idle:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close stops accepting tasks, cancels the context seen by running tasks,
// and waits for workers to exit. Queued tasks that have not started are
// dropped; each receives OnError with a cancellation error, then
// OnFinished.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	dropped := e.queue
	e.queue = nil
	e.pending -= len(dropped)
	// The idle channel is already closed when pending was 0 before Close,
	// and the last worker closes it when running tasks remain. Only the
	// drop itself can complete the transition here.
	if len(dropped) > 0 && e.pending == 0 {
		close(e.idle)
		e.idle = closedChan()
	}
	e.cond.Broadcast()
	e.mu.Unlock()

	e.cancel()
	for _, t := range dropped {
		e.finishDropped(t)
	}
	e.wg.Wait()
}

func (e *Executor) finishDropped(t queuedTask) {
	cb, live := t.callbacks.load()
	if !live {
		return
	}
	if cb.OnError != nil {
		cb.OnError(oops.
			Code("TASK_CANCELLED").
			In("task").
			With("task_id", t.id).
			Wrap(context.Canceled))
	}
	if cb.OnFinished != nil {
		cb.OnFinished()
	}
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 && e.closed {
			e.mu.Unlock()
			return
		}
		t := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.run(t)

		e.mu.Lock()
		e.pending--
		if e.pending == 0 {
			close(e.idle)
			e.idle = closedChan()
		}
		e.mu.Unlock()
	}
}

func (e *Executor) run(t queuedTask) {
	result, err := e.safeCall(t)

	cb, live := t.callbacks.load()
	if !live {
		return
	}
	if err != nil {
		if cb.OnError != nil {
			cb.OnError(err)
		}
	} else if cb.OnResult != nil {
		cb.OnResult(result)
	}
	if cb.OnFinished != nil {
		cb.OnFinished()
	}
}

func (e *Executor) safeCall(t queuedTask) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			e.logger.Error("task panicked",
				slog.String("task_id", t.id),
				slog.Any("panic", r))
			err = oops.
				Code("TASK_PANIC").
				In("task").
				With("task_id", t.id).
				With("stack", stack).
				Errorf("task panicked: %v", r)
		}
	}()
	return t.fn(e.ctx)
}
