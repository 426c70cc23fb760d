// Package queue provides a bounded, thread-safe FIFO used to hand data
// streams from a source pod to a sink pod. A queue has exactly one producer
// and one consumer; the producer blocks when the queue is full and the
// consumer never blocks. Nothing is ever dropped.
package queue

import (
	"context"
	"sync"

	"github.com/haje01/swak/errors"
)

// Queue is a bounded FIFO of items of type T.
type Queue[T any] interface {
	// Write adds an item, waiting for room when the queue is full.
	Write(item T) error

	// WriteWithContext is Write that gives up when ctx is done while waiting
	// for room.
	WriteWithContext(ctx context.Context, item T) error

	// Read removes the oldest item. It never blocks; ok is false when empty.
	Read() (item T, ok bool)

	// Drain removes and returns every queued item in FIFO order.
	Drain() []T

	Len() int
	Cap() int

	// Close wakes blocked writers and rejects further writes. Queued items
	// remain readable.
	Close() error
	Closed() bool

	Stats() *Statistics
}

// New creates a queue holding at most capacity items.
func New[T any](capacity int, options ...Option[T]) (Queue[T], error) {
	opts := applyOptions(options...)
	if capacity <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Queue", "New", "capacity must be positive")
	}

	var m *queueMetrics
	if opts.metricsReg != nil {
		var err error
		m, err = newQueueMetrics(opts.metricsReg, opts.metricsName)
		if err != nil {
			return nil, errors.WrapTransient(err, "Queue", "New", "metrics registration")
		}
	}

	q := &ring[T]{
		items:   make([]T, capacity),
		stats:   NewStatistics(),
		metrics: m,
	}
	q.notFull = sync.NewCond(&q.mu)
	return q, nil
}

type ring[T any] struct {
	mu      sync.Mutex
	items   []T
	head    int // next write position
	tail    int // next read position
	size    int
	closed  bool
	notFull *sync.Cond

	stats   *Statistics
	metrics *queueMetrics
}

func (q *ring[T]) Write(item T) error {
	return q.WriteWithContext(context.Background(), item)
}

func (q *ring[T]) WriteWithContext(ctx context.Context, item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.WrapInvalid(errors.ErrQueueClosed, "Queue", "Write", "queue closed")
	}
	if q.size == len(q.items) {
		if err := q.waitForRoom(ctx); err != nil {
			return err
		}
	}

	q.items[q.head] = item
	q.head = (q.head + 1) % len(q.items)
	q.size++

	q.stats.write(int64(q.size))
	if q.metrics != nil {
		q.metrics.recordWrite(q.size, len(q.items))
	}
	return nil
}

// waitForRoom is called with q.mu held.
func (q *ring[T]) waitForRoom(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notFull.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.stats.block()
	if q.metrics != nil {
		q.metrics.recordBlock()
	}
	for q.size == len(q.items) && !q.closed {
		q.notFull.Wait()
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	if q.closed {
		return errors.WrapInvalid(errors.ErrQueueClosed, "Queue", "Write", "queue closed during wait")
	}
	return nil
}

// pop is called with q.mu held and q.size > 0.
func (q *ring[T]) pop() T {
	var zero T
	item := q.items[q.tail]
	q.items[q.tail] = zero
	q.tail = (q.tail + 1) % len(q.items)
	q.size--
	return item
}

func (q *ring[T]) Read() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		var zero T
		return zero, false
	}

	item := q.pop()
	q.stats.read(int64(q.size))
	if q.metrics != nil {
		q.metrics.recordRead(q.size, len(q.items))
	}
	q.notFull.Signal()
	return item, true
}

func (q *ring[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return nil
	}

	out := make([]T, 0, q.size)
	for q.size > 0 {
		out = append(out, q.pop())
		q.stats.read(int64(q.size))
	}
	if q.metrics != nil {
		q.metrics.recordRead(0, len(q.items))
	}
	q.notFull.Broadcast()
	return out
}

func (q *ring[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *ring[T]) Cap() int {
	return len(q.items)
}

func (q *ring[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		q.notFull.Broadcast()
	}
	return nil
}

func (q *ring[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *ring[T]) Stats() *Statistics {
	return q.stats
}
