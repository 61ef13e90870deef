// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package event

import "sync"

// fifo is an unbounded FIFO queue with blocking pop. Pushing never blocks,
// which is what lets callbacks re-enter the bus without deadlocking.
type fifo[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool

	// inFlight counts popped items whose processing hasn't been marked
	// done yet. Drained waits for items == 0 && inFlight == 0.
	inFlight int
}

func newFIFO[T any]() *fifo[T] {
	q := &fifo[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends an item. Returns false if the queue is closed.
func (q *fifo[T]) push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, item)
	q.cond.Broadcast()
	return true
}

// pop blocks until an item is available or the queue is closed.
// The caller must call done after processing the returned item.
func (q *fifo[T]) pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	q.inFlight++
	return item, true
}

// done marks one popped item as fully processed.
func (q *fifo[T]) done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight--
	q.cond.Broadcast()
}

// drained blocks until the queue is empty and no popped item is still
// being processed.
func (q *fifo[T]) drained() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) > 0 || q.inFlight > 0 {
		q.cond.Wait()
	}
}

// close stops intake and wakes all waiters. Items already queued are
// still handed out by pop.
func (q *fifo[T]) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
