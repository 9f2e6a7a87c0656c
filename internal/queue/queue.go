// Package queue hands job ids from the HTTP layer to the worker pool.
package queue

import (
	"context"
	"errors"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrQueueClosed = errors.New("job queue is closed")
)

// Queue is a FIFO of job ids. Delivery is at-least-once; consumers must
// tolerate seeing an id whose job has already run.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
	// Dequeue blocks until an id is available, ctx is done, or the queue is closed.
	Dequeue(ctx context.Context) (string, error)
	Close() error
}
