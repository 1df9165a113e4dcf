// Package memory provides the in-process priority job queue used by the
// pipeline stages.
package memory

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrEmptyQueue is returned by Peek and Last on an empty queue.
	ErrEmptyQueue = errors.New("queue is empty")
	// ErrQueueClosed is returned once a closed queue has drained.
	ErrQueueClosed = errors.New("queue closed")
)

// Item is anything with an ordering key.
type Item interface {
	Priority() int
}

// Queue is a min-priority queue with a soft capacity and context-aware
// blocking operations. A capacity <= 0 means unbounded.
type Queue[T Item] struct {
	mu       sync.Mutex
	items    itemHeap[T]
	capacity int
	closed   bool
	// ready is closed and replaced whenever an item is added; taken whenever
	// an item is removed.
	ready chan struct{}
	taken chan struct{}
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue[T Item](capacity int) *Queue[T] {
	return &Queue[T]{
		capacity: capacity,
		ready:    make(chan struct{}),
		taken:    make(chan struct{}),
	}
}

// Enqueue adds an item, blocking while the queue is at capacity.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrQueueClosed
		}
		if q.capacity <= 0 || len(q.items) < q.capacity {
			q.pushLocked(item)
			q.mu.Unlock()
			return nil
		}
		wait := q.taken
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return fmt.Errorf("enqueue canceled: %w", ctx.Err())
		case <-wait:
		}
	}
}

// ForceEnqueue adds an item without waiting for capacity. It is meant for
// returning a job that already held a slot, so the queue may briefly exceed
// its capacity.
func (q *Queue[T]) ForceEnqueue(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushLocked(item)
}

// Dequeue removes the lowest-priority item, blocking until one exists.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := heap.Pop(&q.items).(T)
			close(q.taken)
			q.taken = make(chan struct{})
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, ErrQueueClosed
		}
		wait := q.ready
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-wait:
		}
	}
}

// Len returns the number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the configured capacity.
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Peek returns the lowest-priority pending item without removing it.
func (q *Queue[T]) Peek() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, ErrEmptyQueue
	}
	return q.items[0], nil
}

// Last returns the highest-priority pending item without removing it.
func (q *Queue[T]) Last() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, ErrEmptyQueue
	}
	last := q.items[0]
	for _, it := range q.items[1:] {
		if it.Priority() > last.Priority() {
			last = it
		}
	}
	return last, nil
}

// Close stops further enqueues; Dequeue drains what is left and then
// returns ErrQueueClosed.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ready)
	q.ready = make(chan struct{})
	close(q.taken)
	q.taken = make(chan struct{})
}

func (q *Queue[T]) pushLocked(item T) {
	heap.Push(&q.items, item)
	close(q.ready)
	q.ready = make(chan struct{})
}

type itemHeap[T Item] []T

func (h itemHeap[T]) Len() int           { return len(h) }
func (h itemHeap[T]) Less(i, j int) bool { return h[i].Priority() < h[j].Priority() }
func (h itemHeap[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *itemHeap[T]) Push(x any) { *h = append(*h, x.(T)) }

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	var zero T
	old[n-1] = zero
	*h = old[:n-1]
	return item
}
