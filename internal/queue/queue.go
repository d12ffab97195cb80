// Package queue provides a bounded, blocking FIFO shared by producers and
// consumers.
package queue

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("queue is closed")

// Bounded is a fixed-capacity circular buffer.
//
// One slot is kept free so that head == tail always means empty and
// head+1 == tail (mod len) always means full. Producers wait on notFull,
// consumers on notEmpty.
type Bounded[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	buf     []T
	head    int // next slot to fill
	tail    int // next slot to drain
	closing bool
}

// New returns a queue holding at most max items. max < 1 is treated as 1.
func New[T any](max int) *Bounded[T] {
	if max < 1 {
		max = 1
	}
	q := &Bounded[T]{buf: make([]T, max+1)}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Put appends item, blocking while the queue is full.
// It fails with ErrClosed once Close has been called.
func (q *Bounded[T]) Put(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.fullLocked() && !q.closing {
		q.notFull.Wait()
	}
	if q.closing {
		return ErrClosed
	}
	q.buf[q.head] = item
	q.head = (q.head + 1) % len(q.buf)
	q.notEmpty.Signal()
	return nil
}

// Get removes the oldest item, blocking while the queue is empty.
// ok is false only when the queue is empty and closing.
func (q *Bounded[T]) Get() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == q.tail {
		if q.closing {
			return item, false
		}
		q.notEmpty.Wait()
	}
	item = q.buf[q.tail]
	var zero T
	q.buf[q.tail] = zero
	q.tail = (q.tail + 1) % len(q.buf)
	q.notFull.Signal()
	return item, true
}

// Close wakes every blocked caller. Queued items can still be drained.
// Close is safe to call multiple times.
func (q *Bounded[T]) Close() {
	q.mu.Lock()
	q.closing = true
	q.mu.Unlock()

	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Len returns the number of queued items.
func (q *Bounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return (q.head - q.tail + len(q.buf)) % len(q.buf)
}

// Cap returns the maximum number of queued items.
func (q *Bounded[T]) Cap() int {
	return len(q.buf) - 1
}

func (q *Bounded[T]) fullLocked() bool {
	return (q.head+1)%len(q.buf) == q.tail
}
