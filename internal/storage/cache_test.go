package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	c, err := NewCache(CacheMemory, withClock(func() time.Time { return now }))
	require.NoError(t, err)
	ctx := context.Background()

	got, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(time.Minute)
	got, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryCacheSetSweepsExpired(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	c, err := NewCache(CacheMemory, withClock(func() time.Time { return now }))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "old", []byte("1"), time.Second))
	now = now.Add(2 * time.Second)
	require.NoError(t, c.Set(ctx, "new", []byte("2"), time.Second))

	assert.Len(t, c.(*memoryCache).entries, 1)
}

func TestNewCacheValidation(t *testing.T) {
	_, err := NewCache(CacheRedis)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewCache("memcached")
	assert.ErrorIs(t, err, ErrInvalidCacheType)
}

func TestRedisCacheIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	c, err := NewCache(CacheRedis, WithRedisClient(client), WithKeyPrefix("moviebot-test:"))
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	got, err := c.Get(ctx, "absent")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, "present", []byte("value"), time.Minute))
	got, err = c.Get(ctx, "present")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)
}
