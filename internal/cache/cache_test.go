package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/phrasetracker/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected RedisCache.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	redisURL := "redis://" + host + ":" + port.Port()
	rc, err := cache.NewRedisCache(redisURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	return rc
}

func TestRedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	runCacheContract(t, rc)
}

func TestMemoryCache(t *testing.T) {
	runCacheContract(t, cache.NewMemoryCache())
}

// runCacheContract checks behaviour shared by every Cache implementation.
// Keys are randomised so subtests can share one backend.
func runCacheContract(t *testing.T, c cache.Cache) {
	key := func(prefix string) string { return prefix + ":" + uuid.NewString()[:8] }

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, c.Ping(context.Background()))
	})

	t.Run("SetGet_Roundtrip", func(t *testing.T) {
		ctx := context.Background()
		k := key("test")

		require.NoError(t, c.Set(ctx, k, []byte("hello"), 10*time.Second))

		val, found, err := c.Get(ctx, k)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("hello"), val)
	})

	t.Run("Get_NotFound", func(t *testing.T) {
		val, found, err := c.Get(context.Background(), key("nonexistent"))
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, val)
	})

	t.Run("Set_TTLExpiry", func(t *testing.T) {
		ctx := context.Background()
		k := key("expiry")

		require.NoError(t, c.Set(ctx, k, []byte("temp"), 1*time.Second))

		_, found, err := c.Get(ctx, k)
		require.NoError(t, err)
		assert.True(t, found)

		time.Sleep(1500 * time.Millisecond)

		_, found, err = c.Get(ctx, k)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("Delete", func(t *testing.T) {
		ctx := context.Background()
		k := key("del")
		require.NoError(t, c.Set(ctx, k, []byte("bye"), 10*time.Second))

		require.NoError(t, c.Delete(ctx, k))

		_, found, err := c.Get(ctx, k)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("Delete_NonExistent", func(t *testing.T) {
		assert.NoError(t, c.Delete(context.Background(), key("does:not:exist")))
	})

	t.Run("JobStatus", func(t *testing.T) {
		ctx := context.Background()
		jobID := "job_" + uuid.NewString()[:8]

		require.NoError(t, c.SetJobStatus(ctx, jobID, "processing", 10*time.Second))

		status, found, err := c.GetJobStatus(ctx, jobID)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "processing", status)
	})

	t.Run("JobStatus_NotFound", func(t *testing.T) {
		status, found, err := c.GetJobStatus(context.Background(), "job_unknown_"+uuid.NewString()[:8])
		require.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, "", status)
	})

	t.Run("IncrWithExpiry", func(t *testing.T) {
		ctx := context.Background()
		k := key("ratelimit:test")

		for want := int64(1); want <= 3; want++ {
			val, err := c.IncrWithExpiry(ctx, k, 10*time.Second)
			require.NoError(t, err)
			assert.Equal(t, want, val)
		}
	})

	t.Run("IncrWithExpiry_Expires", func(t *testing.T) {
		ctx := context.Background()
		k := key("ratelimit:expiry")

		_, err := c.IncrWithExpiry(ctx, k, 1*time.Second)
		require.NoError(t, err)

		time.Sleep(1500 * time.Millisecond)

		// After expiry, should start from 1 again
		val, err := c.IncrWithExpiry(ctx, k, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(1), val)
	})

	t.Run("IncrWithExpiry_WindowStartsAtFirstHit", func(t *testing.T) {
		ctx := context.Background()
		k := key("ratelimit:window")

		_, err := c.IncrWithExpiry(ctx, k, 1*time.Second)
		require.NoError(t, err)
		time.Sleep(600 * time.Millisecond)

		val, err := c.IncrWithExpiry(ctx, k, 1*time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(2), val)
		time.Sleep(600 * time.Millisecond)

		// the second hit must not have pushed the expiry out
		val, err = c.IncrWithExpiry(ctx, k, 1*time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(1), val)
	})
}

// fakeClock is a manually advanced time source.
type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func TestMemoryCache_IncrWindowResetsForSteadyClient(t *testing.T) {
	clock := newFakeClock()
	c := cache.NewMemoryCacheWithClock(clock.Now)
	ctx := context.Background()
	k := cache.RateLimitKey("poller")

	var counts []int64
	for i := 0; i < 10; i++ {
		n, err := c.IncrWithExpiry(ctx, k, time.Minute)
		require.NoError(t, err)
		counts = append(counts, n)
		clock.Advance(30 * time.Second)
	}

	assert.Equal(t, []int64{1, 2, 1, 2, 1, 2, 1, 2, 1, 2}, counts)
}

func TestMemoryCache_WritesSweepExpiredEntries(t *testing.T) {
	clock := newFakeClock()
	c := cache.NewMemoryCacheWithClock(clock.Now)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		require.NoError(t, c.Set(ctx, cache.JobViewKey(uuid.NewString()), []byte("{}"), time.Minute))
		_, err := c.IncrWithExpiry(ctx, cache.RateLimitKey(uuid.NewString()), time.Minute)
		require.NoError(t, err)
	}
	require.NoError(t, c.Set(ctx, "persistent", []byte("x"), 0))
	assert.Equal(t, 2001, c.Len())

	clock.Advance(48 * time.Hour)
	require.NoError(t, c.Set(ctx, cache.JobViewKey("fresh"), []byte("{}"), time.Minute))

	assert.Equal(t, 2, c.Len())
}

func TestMemoryCache_DeleteExpired(t *testing.T) {
	clock := newFakeClock()
	c := cache.NewMemoryCacheWithClock(clock.Now)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("a"), time.Second))
	require.NoError(t, c.Set(ctx, "long", []byte("b"), time.Hour))

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, c.DeleteExpired())
	assert.Equal(t, 1, c.Len())

	_, found, err := c.Get(ctx, "long")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestMemoryCache_GetReturnsCopy(t *testing.T) {
	c := cache.NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("abc"), 0))

	val, _, _ := c.Get(ctx, "k")
	val[0] = 'z'

	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

// --- Cache Key Builders ---

func TestJobStatusKey(t *testing.T) {
	assert.Equal(t, "job:job_1700000000000_ab12cd34:status", cache.JobStatusKey("job_1700000000000_ab12cd34"))
}

func TestJobViewKey(t *testing.T) {
	assert.Equal(t, "job:job_1:view", cache.JobViewKey("job_1"))
}

func TestRateLimitKey(t *testing.T) {
	assert.Equal(t, "ratelimit:crm", cache.RateLimitKey("crm"))
}

func TestKeyBuilders_NonColliding(t *testing.T) {
	keys := map[string]bool{
		cache.JobStatusKey("x"): true,
		cache.JobViewKey("x"):   true,
		cache.RateLimitKey("x"): true,
	}
	assert.Len(t, keys, 3, "all keys should be unique")
}
