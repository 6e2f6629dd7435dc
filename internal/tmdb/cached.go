package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Cache is the byte store CachedClient keeps lookups in. Get returns nil, nil
// on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// CachedClient memoizes single-title lookups. Searches always go upstream so
// pagination reflects the provider.
type CachedClient struct {
	*Client
	cache Cache
	ttl   time.Duration
}

func NewCachedClient(c *Client, cache Cache, ttl time.Duration) *CachedClient {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &CachedClient{Client: c, cache: cache, ttl: ttl}
}

func (c *CachedClient) Lookup(ctx context.Context, kind Kind, id int) (*Media, error) {
	key := fmt.Sprintf("tmdb:%s:%d", kind, id)
	if m := c.load(ctx, key); m != nil {
		return m, nil
	}
	m, err := c.Client.Lookup(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, m)
	return m, nil
}

func (c *CachedClient) FindByExternalID(ctx context.Context, externalID string) (*Media, error) {
	key := "tmdb:find:" + externalID
	if m := c.load(ctx, key); m != nil {
		return m, nil
	}
	m, err := c.Client.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, m)
	return m, nil
}

func (c *CachedClient) load(ctx context.Context, key string) *Media {
	if c.cache == nil {
		return nil
	}
	b, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if b == nil {
		return nil
	}
	var m Media
	if err := json.Unmarshal(b, &m); err != nil || m.Title == "" {
		return nil
	}
	return &m
}

func (c *CachedClient) store(ctx context.Context, key string, m *Media) {
	if c.cache == nil || m == nil {
		return
	}
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
		c.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}
