package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Devendrasinghadiya/dekhomovie/internal/config"
	"github.com/Devendrasinghadiya/dekhomovie/internal/storage"
)

func TestNewCacheMemory(t *testing.T) {
	cache, err := newCache(context.Background(), &config.Config{CacheDriver: "memory"})
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Set(context.Background(), "k", []byte("v"), time.Minute))
	got, err := cache.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestNewCacheRedisNeedsAddr(t *testing.T) {
	_, err := newCache(context.Background(), &config.Config{CacheDriver: "redis"})
	assert.True(t, errors.Is(err, storage.ErrInvalidConfig))
}

func TestNewCacheUnknownDriver(t *testing.T) {
	_, err := newCache(context.Background(), &config.Config{CacheDriver: "memcached"})
	assert.True(t, errors.Is(err, storage.ErrInvalidCacheType))
}

func TestCommandsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range commands {
		assert.False(t, seen[c.Command], c.Command)
		seen[c.Command] = true
		assert.NotEmpty(t, c.Description)
	}
}
