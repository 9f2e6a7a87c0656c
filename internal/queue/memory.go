package queue

import (
	"context"
	"sync"
)

// MemoryQueue is a bounded in-process Queue backed by a buffered channel.
type MemoryQueue struct {
	items chan string
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryQueue{
		items: make(chan string, capacity),
		done:  make(chan struct{}),
	}
}

// Enqueue never blocks; a saturated queue returns ErrQueueFull.
func (q *MemoryQueue) Enqueue(_ context.Context, jobID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.items <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case id := <-q.items:
		return id, nil
	case <-q.done:
		return "", ErrQueueClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Len returns the number of waiting ids.
func (q *MemoryQueue) Len() int { return len(q.items) }

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
