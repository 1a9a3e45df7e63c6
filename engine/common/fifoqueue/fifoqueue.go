package fifoqueue

import (
	"fmt"
	mathbits "math/bits"
	"sync"

	"github.com/ef-ds/deque"
)

// FifoQueue is a concurrency safe FIFO queue with a maximum capacity.
// Elements pushed beyond the capacity are dropped. Each time the queue's
// length changes, the optional QueueLengthObserver is called with the new length.
type FifoQueue[T any] struct {
	mu             sync.RWMutex
	queue          deque.Deque
	maxCapacity    int
	lengthObserver QueueLengthObserver
}

// ConstructorOption configures the queue at construction time.
type ConstructorOption func(*config) error

type config struct {
	maxCapacity    int
	lengthObserver QueueLengthObserver
}

// QueueLengthObserver is notified of every change of the queue length.
// It must be non-blocking.
type QueueLengthObserver func(int)

// WithCapacity sets the maximum number of elements the queue holds.
func WithCapacity(capacity int) ConstructorOption {
	return func(cfg *config) error {
		if capacity < 1 {
			return fmt.Errorf("capacity for fifo queue must be positive, got %d", capacity)
		}
		cfg.maxCapacity = capacity
		return nil
	}
}

// WithLengthObserver sets the callback which is notified of length changes.
func WithLengthObserver(callback QueueLengthObserver) ConstructorOption {
	return func(cfg *config) error {
		if callback == nil {
			return fmt.Errorf("nil is not a valid QueueLengthObserver")
		}
		cfg.lengthObserver = callback
		return nil
	}
}

func NewFifoQueue[T any](options ...ConstructorOption) (*FifoQueue[T], error) {
	cfg := &config{
		maxCapacity:    1<<(mathbits.UintSize-1) - 1,
		lengthObserver: func(int) {},
	}
	for _, opt := range options {
		err := opt(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to apply constructor option to fifo queue: %w", err)
		}
	}

	return &FifoQueue[T]{
		maxCapacity:    cfg.maxCapacity,
		lengthObserver: cfg.lengthObserver,
	}, nil
}

// Push appends the element to the tail of the queue. It returns false if the
// queue is full and the element was dropped.
func (q *FifoQueue[T]) Push(element T) bool {
	q.mu.Lock()
	length := q.queue.Len()
	if length >= q.maxCapacity {
		q.mu.Unlock()
		return false
	}
	q.queue.PushBack(element)
	q.mu.Unlock()

	q.lengthObserver(length + 1)
	return true
}

// Pop removes and returns the head of the queue.
func (q *FifoQueue[T]) Pop() (T, bool) {
	q.mu.Lock()
	element, ok := q.queue.PopFront()
	length := q.queue.Len()
	q.mu.Unlock()

	if !ok {
		var empty T
		return empty, false
	}
	q.lengthObserver(length)
	return element.(T), true
}

// Front returns the head of the queue without removing it.
func (q *FifoQueue[T]) Front() (T, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	element, ok := q.queue.Front()
	if !ok {
		var empty T
		return empty, false
	}
	return element.(T), true
}

// Clear removes all elements.
func (q *FifoQueue[T]) Clear() {
	q.mu.Lock()
	q.queue.Init()
	q.mu.Unlock()

	q.lengthObserver(0)
}

func (q *FifoQueue[T]) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.queue.Len()
}
