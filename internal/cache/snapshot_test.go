package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/licenseboard/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySnapshotStoreExpiresAndInvalidates(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	store := newMemorySnapshotStoreWithClock(fake.Now)

	require.NoError(t, store.Set(ctx, "licenses:2024-01-01:2025-01-01", []byte(`[1]`), 5*time.Minute))

	value, ok, err := store.Get(ctx, "licenses:2024-01-01:2025-01-01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`[1]`), value)

	value[0] = 'x'
	again, _, _ := store.Get(ctx, "licenses:2024-01-01:2025-01-01")
	assert.Equal(t, []byte(`[1]`), again)

	fake.Advance(5 * time.Minute)
	_, ok, err = store.Get(ctx, "licenses:2024-01-01:2025-01-01")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Invalidate(ctx))
	_, ok, _ = store.Get(ctx, "a")
	assert.False(t, ok)
}

func TestRedisSnapshotStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewSnapshotStore(client)
	_, isRedis := store.(*redisSnapshotStore)
	require.True(t, isRedis)

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "licenses:a", []byte("payload-a"), time.Minute))
	require.NoError(t, store.Set(ctx, "licenses:b", []byte("payload-b"), time.Minute))
	require.NoError(t, mr.Set("unrelated", "keep"))

	value, ok, err := store.Get(ctx, "licenses:a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "payload-a", string(value))

	mr.FastForward(2 * time.Minute)
	_, ok, err = store.Get(ctx, "licenses:a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "licenses:c", []byte("payload-c"), time.Minute))
	require.NoError(t, store.Invalidate(ctx))
	_, ok, _ = store.Get(ctx, "licenses:c")
	assert.False(t, ok)
	assert.True(t, mr.Exists("unrelated"))
}

func TestNewSnapshotStoreFallsBackToMemory(t *testing.T) {
	_, isMemory := NewSnapshotStore(nil).(*memorySnapshotStore)
	assert.True(t, isMemory)
}
