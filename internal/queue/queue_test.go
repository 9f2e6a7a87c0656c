package queue_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kiranshivaraju/phrasetracker/internal/queue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestMemoryQueue_FIFO(t *testing.T) {
	q := queue.NewMemoryQueue(10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, fmt.Sprintf("job_%d", i)))
	}
	assert.Equal(t, 3, q.Len())

	for i := 0; i < 3; i++ {
		id, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("job_%d", i), id)
	}
}

func TestMemoryQueue_Full(t *testing.T) {
	q := queue.NewMemoryQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "job_a"))
	err := q.Enqueue(ctx, "job_b")
	assert.ErrorIs(t, err, queue.ErrQueueFull)
}

func TestMemoryQueue_DequeueHonoursContext(t *testing.T) {
	q := queue.NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueue_Close(t *testing.T) {
	q := queue.NewMemoryQueue(1)

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errCh <- err
	}()

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, queue.ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after Close")
	}

	assert.ErrorIs(t, q.Enqueue(context.Background(), "job_late"), queue.ErrQueueClosed)
}

// --- Redis ---

func setupRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisQueue(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedisClient(t)
	ctx := context.Background()

	t.Run("FIFO", func(t *testing.T) {
		q := queue.NewRedisQueue(client, "test:fifo")
		for i := 0; i < 3; i++ {
			require.NoError(t, q.Enqueue(ctx, fmt.Sprintf("job_%d", i)))
		}
		for i := 0; i < 3; i++ {
			id, err := q.Dequeue(ctx)
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("job_%d", i), id)
		}
	})

	t.Run("SharedAcrossInstances", func(t *testing.T) {
		producer := queue.NewRedisQueue(client, "test:shared")
		consumer := queue.NewRedisQueue(client, "test:shared")

		require.NoError(t, producer.Enqueue(ctx, "job_x"))
		id, err := consumer.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, "job_x", id)
	})

	t.Run("DequeueHonoursContext", func(t *testing.T) {
		q := queue.NewRedisQueue(client, "test:empty")
		cctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()

		_, err := q.Dequeue(cctx)
		require.Error(t, err)
	})

	t.Run("Close", func(t *testing.T) {
		q := queue.NewRedisQueue(client, "test:closed")
		require.NoError(t, q.Close())
		assert.ErrorIs(t, q.Enqueue(ctx, "job_y"), queue.ErrQueueClosed)
		_, err := q.Dequeue(ctx)
		assert.ErrorIs(t, err, queue.ErrQueueClosed)
	})
}
