package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := Wrap(redis.NewClient(opts), ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	t.Cleanup(func() {
		_ = client.Close()
	})
	require.NoError(t, client.Ping(ctx))
	return client
}

func TestLockerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping redis integration test in short mode")
	}

	client := newTestClient(t)
	locker := NewLocker(client, "")
	ctx := context.Background()

	t.Run("second acquire fails while held", func(t *testing.T) {
		lock, err := locker.Acquire(ctx, "2024_03", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, DefaultKeyPrefix+"2024_03", lock.Key())

		_, err = locker.Acquire(ctx, "2024_03", time.Minute)
		assert.ErrorIs(t, err, ErrLockNotAcquired)

		require.NoError(t, lock.Release(ctx))
		assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)

		again, err := locker.Acquire(ctx, "2024_03", time.Minute)
		require.NoError(t, err)
		require.NoError(t, again.Release(ctx))
	})

	t.Run("expired lock can be taken", func(t *testing.T) {
		stale, err := locker.Acquire(ctx, "2024_02", 50*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(150 * time.Millisecond)

		fresh, err := locker.Acquire(ctx, "2024_02", time.Minute)
		require.NoError(t, err)

		assert.ErrorIs(t, stale.Release(ctx), ErrLockNotHeld)
		require.NoError(t, fresh.Release(ctx))
	})

	t.Run("with lock releases after fn", func(t *testing.T) {
		boom := errors.New("load failed")
		err := locker.WithLock(ctx, "2024_01", time.Minute, func(ctx context.Context) error {
			_, err := locker.Acquire(ctx, "2024_01", time.Minute)
			assert.ErrorIs(t, err, ErrLockNotAcquired)
			return boom
		})
		assert.ErrorIs(t, err, boom)

		lock, err := locker.Acquire(ctx, "2024_01", time.Minute)
		require.NoError(t, err)
		require.NoError(t, lock.Release(ctx))
	})
}

func TestConfigEnabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{Host: "localhost", Port: 6379}.Enabled())
}

func TestConfigAddr(t *testing.T) {
	assert.Equal(t, "localhost:6379", Config{Host: "localhost", Port: 6379}.Addr())
	assert.Equal(t, "[::1]:6380", Config{Host: "::1", Port: 6380}.Addr())
}

func TestPingUnreachable(t *testing.T) {
	client := Wrap(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1}),
		ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	defer client.Close()

	err := client.Ping(context.Background())
	assert.ErrorContains(t, err, "127.0.0.1:1")
}
