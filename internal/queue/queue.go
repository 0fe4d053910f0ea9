// Package queue provides the bounded blocking queues connecting pipeline
// stages. A full queue blocks the producer until space frees or the
// context is cancelled; nothing is ever dropped.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nagendra0018/dcn/internal/errors"
)

// Queue is a bounded FIFO queue with blocking semantics on both ends.
type Queue[T any] struct {
	ch chan T

	// mu serializes Close against in-flight Puts: senders hold the read
	// side for the duration of the send, so the channel can never be
	// closed under a pending send.
	mu     sync.RWMutex
	closed bool

	stats Stats
}

// Stats tracks queue activity. All fields are updated atomically.
type Stats struct {
	Enqueued     atomic.Int64
	Dequeued     atomic.Int64
	BlockedNanos atomic.Int64
}

// StatsSnapshot is a point-in-time copy of queue statistics.
type StatsSnapshot struct {
	Enqueued    int64
	Dequeued    int64
	Depth       int
	Capacity    int
	BlockedTime time.Duration
}

// New creates a queue with the given capacity.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{
		ch: make(chan T, capacity),
	}
}

// Put enqueues an item, blocking while the queue is full. It returns
// ErrQueueClosed if the queue has been closed, or the context error if
// ctx is cancelled while blocked.
func (q *Queue[T]) Put(ctx context.Context, item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errors.ErrQueueClosed
	}

	// Fast path: space available.
	select {
	case q.ch <- item:
		q.stats.Enqueued.Add(1)
		return nil
	default:
	}

	start := time.Now()
	select {
	case q.ch <- item:
		q.stats.Enqueued.Add(1)
		q.stats.BlockedNanos.Add(time.Since(start).Nanoseconds())
		return nil
	case <-ctx.Done():
		q.stats.BlockedNanos.Add(time.Since(start).Nanoseconds())
		return ctx.Err()
	}
}

// Get dequeues an item, blocking while the queue is empty. After Close,
// Get drains remaining items and then returns ErrQueueClosed.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	var zero T

	select {
	case item, ok := <-q.ch:
		if !ok {
			return zero, errors.ErrQueueClosed
		}
		q.stats.Dequeued.Add(1)
		return item, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// TryGet dequeues without blocking. The second return is false when the
// queue is empty.
func (q *Queue[T]) TryGet() (T, bool) {
	var zero T
	select {
	case item, ok := <-q.ch:
		if !ok {
			return zero, false
		}
		q.stats.Dequeued.Add(1)
		return item, true
	default:
		return zero, false
	}
}

// Close marks the queue closed. Pending items remain readable via Get
// until drained. Close waits for in-flight Puts and is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Len returns the current queue depth.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}

// Snapshot returns current statistics.
func (q *Queue[T]) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Enqueued:    q.stats.Enqueued.Load(),
		Dequeued:    q.stats.Dequeued.Load(),
		Depth:       len(q.ch),
		Capacity:    cap(q.ch),
		BlockedTime: time.Duration(q.stats.BlockedNanos.Load()),
	}
}
