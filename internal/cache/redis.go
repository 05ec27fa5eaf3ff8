package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/tonepipe/internal/domain"
	"github.com/davidbz/tonepipe/internal/observability"
)

// RedisCache is a Redis-backed response cache. Expiry is enforced
// server-side via key TTLs, so there is no sweeper to run. Safe for
// concurrent use.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis-backed response cache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the cached result for a key, or domain.ErrCacheMiss.
// Store faults surface as errors; the pipeline treats them as misses.
func (c *RedisCache) Get(ctx context.Context, key string) (*domain.RewriteResult, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var result domain.RewriteResult
	if err := json.Unmarshal(data, &result); err != nil {
		// A corrupt entry is as good as absent; drop it.
		observability.FromContext(ctx).Warn("dropping corrupt cache entry",
			observability.String("cache_key", key),
			observability.Error(err))
		c.client.Del(ctx, key)
		return nil, domain.ErrCacheMiss
	}

	return &result, nil
}

// Set stores a result under a key with a per-entry TTL.
func (c *RedisCache) Set(ctx context.Context, key string, result *domain.RewriteResult, ttl time.Duration) error {
	if result == nil {
		return errors.New("result cannot be nil")
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}
