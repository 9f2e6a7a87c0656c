package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the list that holds pending job ids.
const DefaultRedisKey = "phrasetracker:jobs"

// pollTimeout bounds each BRPOP so Dequeue notices cancellation and Close.
const pollTimeout = 2 * time.Second

// RedisQueue implements Queue on a Redis list (LPUSH / BRPOP), so queued jobs
// survive a process restart and can be consumed by several server instances.
type RedisQueue struct {
	client *redis.Client
	key    string
	closed atomic.Bool
}

// NewRedisQueue creates a queue on key. The client is shared and not closed by Close.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobID string) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	if err := q.client.LPush(ctx, q.key, jobID).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	for {
		if q.closed.Load() {
			return "", ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		res, err := q.client.BRPop(ctx, pollTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", fmt.Errorf("dequeue job: %w", err)
		}
		// BRPOP replies with [key, value]
		if len(res) != 2 {
			return "", fmt.Errorf("dequeue job: unexpected reply %v", res)
		}
		return res[1], nil
	}
}

func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}

var _ Queue = (*RedisQueue)(nil)
