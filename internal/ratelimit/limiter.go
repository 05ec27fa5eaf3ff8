// Package ratelimit enforces the per-tier hourly rate cap.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	window    = time.Hour
	keyExpiry = 2 * time.Hour
)

// Limiter is used to enforce per-user hourly rate limits.
type Limiter interface {
	// Allow reports whether one more request fits under the limit for
	// the key within the current window. A non-positive limit means no
	// limit is configured.
	Allow(ctx context.Context, key string, limit int) (bool, error)
}

// NoopLimiter allows all requests. Used when no Redis backend is
// configured.
type NoopLimiter struct{}

// NewNoopLimiter creates a limiter that never denies.
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

// Allow always permits the request.
func (l *NoopLimiter) Allow(_ context.Context, _ string, _ int) (bool, error) {
	return true, nil
}

// SlidingWindowLimiter implements distributed rate limiting using Redis
// sorted sets: one member per request, scored by timestamp, trimmed to
// the window on every check.
type SlidingWindowLimiter struct {
	client *redis.Client
}

// NewSlidingWindowLimiter creates a Redis-backed sliding window limiter.
func NewSlidingWindowLimiter(client *redis.Client) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{client: client}
}

// Allow checks if a request should be allowed for the given key.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	redisKey := fmt.Sprintf("ratelimit:%s", key)
	now := time.Now()
	windowStart := now.Add(-window)

	pipe := l.client.Pipeline()

	// Remove entries outside the window.
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixMilli()))

	// Count requests currently in the window.
	countCmd := pipe.ZCard(ctx, redisKey)

	// Record this request with its timestamp as score.
	timestamp := now.UnixMilli()
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(timestamp),
		Member: fmt.Sprintf("%d:%d", timestamp, now.Nanosecond()),
	})

	// Expire idle keys.
	pipe.Expire(ctx, redisKey, keyExpiry)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	return int(countCmd.Val()) < limit, nil
}
