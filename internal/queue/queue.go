// Package queue runs submitted operations with a fixed upper bound on concurrency.
//
// Operations start in submission order; they may finish in any order. A failing or
// panicking operation only affects its own [Future].
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPanic wraps a value recovered from a panicking operation.
var ErrPanic = errors.New("queue: operation panicked")

// Queue is a FIFO scheduler with at most Limit operations in flight.
type Queue struct {
	mu       sync.Mutex
	limit    int
	inFlight int
	pending  []func()
}

// New creates a queue. Limits below one are raised to one.
func New(limit int) *Queue {
	if limit < 1 {
		limit = 1
	}
	return &Queue{limit: limit}
}

// Limit is the configured concurrency bound.
func (q *Queue) Limit() int { return q.limit }

// InFlight is the number of running operations.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// Pending is the number of queued operations that have not started.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// enqueue starts run immediately when a slot is free, otherwise appends it to pending.
func (q *Queue) enqueue(run func()) {
	q.mu.Lock()
	if q.inFlight < q.limit {
		q.inFlight++
		q.mu.Unlock()
		go q.exec(run)
		return
	}
	q.pending = append(q.pending, run)
	q.mu.Unlock()
}

// exec runs one operation and then hands its slot to the oldest pending one.
func (q *Queue) exec(run func()) {
	for run != nil {
		run()

		q.mu.Lock()
		if len(q.pending) == 0 {
			q.inFlight--
			q.mu.Unlock()
			return
		}
		run = q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()
	}
}

// Future is the eventual result of a submitted operation.
type Future[R any] struct {
	done  chan struct{}
	value R
	err   error
}

// Done is closed once the operation has returned.
func (f *Future[R]) Done() <-chan struct{} { return f.done }

// Wait blocks until the operation returns or ctx is done.
//
// Giving up on ctx does not stop the operation, which keeps its slot until it returns.
func (f *Future[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Submit enqueues op and returns immediately. Calls from one goroutine start in call order.
func Submit[R any](ctx context.Context, q *Queue, op func(context.Context) (R, error)) *Future[R] {
	f := &Future[R]{done: make(chan struct{})}
	q.enqueue(func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		f.value, f.err = op(ctx)
	})
	return f
}

// Do submits op and waits for its result.
func Do[R any](ctx context.Context, q *Queue, op func(context.Context) (R, error)) (R, error) {
	return Submit(ctx, q, op).Wait(ctx)
}
