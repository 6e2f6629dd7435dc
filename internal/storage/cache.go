package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type CacheType string

const (
	CacheMemory CacheType = "memory"
	CacheRedis  CacheType = "redis"
)

var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidCacheType = errors.New("invalid cache type")
)

// Cache stores opaque values with a TTL. Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Close() error
}

type CacheOption func(*cacheConfig)

type cacheConfig struct {
	redisClient *redis.Client
	prefix      string
	now         func() time.Time
}

func WithRedisClient(client *redis.Client) CacheOption {
	return func(c *cacheConfig) {
		c.redisClient = client
	}
}

// WithKeyPrefix namespaces redis keys.
func WithKeyPrefix(prefix string) CacheOption {
	return func(c *cacheConfig) {
		c.prefix = prefix
	}
}

func withClock(now func() time.Time) CacheOption {
	return func(c *cacheConfig) {
		c.now = now
	}
}

func NewCache(cacheType CacheType, opts ...CacheOption) (Cache, error) {
	cfg := &cacheConfig{prefix: "moviebot:", now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}

	switch cacheType {
	case CacheMemory, "":
		return &memoryCache{entries: make(map[string]memoryEntry), now: cfg.now}, nil
	case CacheRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return &redisCache{client: cfg.redisClient, prefix: cfg.prefix}, nil
	default:
		return nil, ErrInvalidCacheType
	}
}

type memoryEntry struct {
	val     []byte
	expires time.Time
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, nil
	}
	return e.val, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	// expired entries are dropped on write so the map does not grow forever
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryEntry{val: append([]byte(nil), val...), expires: now.Add(ttl)}
	return nil
}

func (c *memoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]memoryEntry)
	return nil
}

type redisCache struct {
	client *redis.Client
	prefix string
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (c *redisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, val, ttl).Err()
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
