package pipeline

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Get once a closed queue has been drained.
var ErrQueueClosed = errors.New("pipeline: queue closed")

// Queue is an unbounded multi-producer, single-consumer FIFO mailbox.
//
// Put never blocks, so it is safe to call from a real-time capture callback.
// Get blocks until an item is available, the queue is closed and drained, or
// the context is cancelled. Insertion order is delivery order.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool

	// ready holds a token while items is non-empty or the queue is closed.
	ready chan struct{}

	onDepth func(delta int64)
}

// QueueOption is a functional option for configuring a Queue.
type QueueOption func(*queueOptions)

type queueOptions struct {
	onDepth func(delta int64)
}

// WithDepthObserver registers a callback invoked with +1 on every Put and -1
// on every Get. It runs outside the queue lock and must not block.
func WithDepthObserver(fn func(delta int64)) QueueOption {
	return func(o *queueOptions) { o.onDepth = fn }
}

// NewQueue returns an empty queue.
func NewQueue[T any](opts ...QueueOption) *Queue[T] {
	var o queueOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Queue[T]{ready: make(chan struct{}, 1), onDepth: o.onDepth}
}

// Put appends v. It returns false if the queue has been closed, in which case
// v is discarded.
func (q *Queue[T]) Put(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.signalLocked()
	q.mu.Unlock()

	if q.onDepth != nil {
		q.onDepth(1)
	}
	return true
}

// Get removes and returns the oldest item. Remaining items are still delivered
// after Close; ErrQueueClosed is returned only once the queue is empty.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if q.head < len(q.items) {
			v := q.items[q.head]
			q.items[q.head] = zero
			q.head++
			if q.head == len(q.items) {
				q.items = q.items[:0]
				q.head = 0
			} else if q.head > 64 && q.head*2 > len(q.items) {
				n := copy(q.items, q.items[q.head:])
				clear(q.items[n:])
				q.items = q.items[:n]
				q.head = 0
			}
			q.signalLocked()
			q.mu.Unlock()
			if q.onDepth != nil {
				q.onDepth(-1)
			}
			return v, nil
		}
		if q.closed {
			q.signalLocked()
			q.mu.Unlock()
			return zero, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-q.ready:
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Close stops accepting new items and wakes a blocked consumer. Calling Close
// more than once is safe.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.signalLocked()
}

// Discard drops every queued item and returns how many were dropped.
func (q *Queue[T]) Discard() int {
	q.mu.Lock()
	n := len(q.items) - q.head
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
	q.mu.Unlock()

	if n > 0 && q.onDepth != nil {
		q.onDepth(int64(-n))
	}
	return n
}

// signalLocked leaves a wake-up token if there is something for Get to do.
func (q *Queue[T]) signalLocked() {
	if q.head < len(q.items) || q.closed {
		select {
		case q.ready <- struct{}{}:
		default:
		}
	}
}
