// Package tasks runs side effects in the background while keeping their
// completion and errors observable.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mspro-labs/coffee-finder/internal/logging"
	"mspro-labs/coffee-finder/internal/telemetry"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("task queue closed")

// Func is the unit of work.
type Func func(ctx context.Context) error

// Task is a handle on submitted work.
type Task struct {
	Name string
	fn   Func
	done chan struct{}
	err  error
}

// Wait blocks until the task finished or ctx ends.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Queue is a fixed pool of workers consuming a buffered channel.
type Queue struct {
	tasks   chan *Task
	timeout time.Duration
	metrics telemetry.Collector
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue starts workers goroutines. Each task runs with its own timeout,
// detached from the submitter's context.
func NewQueue(workers, buffer int, timeout time.Duration, metrics telemetry.Collector, logger zerolog.Logger) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	q := &Queue{
		tasks:   make(chan *Task, buffer),
		timeout: timeout,
		metrics: metrics,
		logger:  logging.Component(logger, "tasks"),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		q.run(t)
	}
}

func (q *Queue) run(t *Task) {
	ctx := context.Background()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}
	defer close(t.done)

	t.err = call(ctx, t)
	q.metrics.IncTask(t.Name, telemetry.Outcome(t.err))
	if t.err != nil {
		q.logger.Warn().Err(t.err).Str("task", t.Name).Msg("background task failed")
	}
}

// call runs the task body, turning a panic into the task's error so the
// worker survives and waiters are released.
func call(ctx context.Context, t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.Name, r)
		}
	}()
	return t.fn(ctx)
}

// Submit enqueues fn. It blocks while the buffer is full.
func (q *Queue) Submit(name string, fn Func) (*Task, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrClosed
	}
	t := &Task{Name: name, fn: fn, done: make(chan struct{})}
	q.tasks <- t
	return t, nil
}

// Close stops accepting work and waits for queued tasks to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()
	q.wg.Wait()
}
