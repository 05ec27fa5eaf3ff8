package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/tonepipe/internal/cache"
	"github.com/davidbz/tonepipe/internal/domain"
)

func sampleResult() *domain.RewriteResult {
	return &domain.RewriteResult{
		RewrittenText: "We appreciate the update.",
		OriginalText:  "Thanks for the update",
		Model:         "gpt-3.5-turbo",
		ProcessingMS:  120,
		TokensUsed:    42,
		Violations:    nil,
	}
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("should return a stored result before its TTL elapses", func(t *testing.T) {
		c := cache.NewMemoryCache(time.Minute)
		defer c.Close()

		require.NoError(t, c.Set(ctx, "key", sampleResult(), time.Minute))

		got, err := c.Get(ctx, "key")
		require.NoError(t, err)
		require.Equal(t, sampleResult(), got)
	})

	t.Run("should miss for an unknown key", func(t *testing.T) {
		c := cache.NewMemoryCache(time.Minute)
		defer c.Close()

		_, err := c.Get(ctx, "missing")
		require.ErrorIs(t, err, domain.ErrCacheMiss)
	})

	t.Run("should never return an entry past its expiry", func(t *testing.T) {
		c := cache.NewMemoryCache(time.Minute)
		defer c.Close()

		require.NoError(t, c.Set(ctx, "key", sampleResult(), 30*time.Millisecond))
		time.Sleep(60 * time.Millisecond)

		_, err := c.Get(ctx, "key")
		require.ErrorIs(t, err, domain.ErrCacheMiss)
	})

	t.Run("should drop lazily expired entries", func(t *testing.T) {
		c := cache.NewMemoryCache(time.Hour)
		defer c.Close()

		require.NoError(t, c.Set(ctx, "key", sampleResult(), 10*time.Millisecond))
		time.Sleep(30 * time.Millisecond)

		_, err := c.Get(ctx, "key")
		require.ErrorIs(t, err, domain.ErrCacheMiss)
		require.Equal(t, 0, c.Len())
	})

	t.Run("should sweep expired entries periodically", func(t *testing.T) {
		c := cache.NewMemoryCache(20 * time.Millisecond)
		defer c.Close()

		require.NoError(t, c.Set(ctx, "a", sampleResult(), 10*time.Millisecond))
		require.NoError(t, c.Set(ctx, "b", sampleResult(), 10*time.Millisecond))

		require.Eventually(t, func() bool {
			return c.Len() == 0
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("should isolate cached state from caller mutation", func(t *testing.T) {
		c := cache.NewMemoryCache(time.Minute)
		defer c.Close()

		require.NoError(t, c.Set(ctx, "key", sampleResult(), time.Minute))

		first, err := c.Get(ctx, "key")
		require.NoError(t, err)
		first.ProcessingMS = 9999

		second, err := c.Get(ctx, "key")
		require.NoError(t, err)
		require.Equal(t, int64(120), second.ProcessingMS)
	})

	t.Run("should reject a nil result", func(t *testing.T) {
		c := cache.NewMemoryCache(time.Minute)
		defer c.Close()

		require.Error(t, c.Set(ctx, "key", nil, time.Minute))
	})

	t.Run("should support concurrent readers and writers", func(t *testing.T) {
		c := cache.NewMemoryCache(time.Minute)
		defer c.Close()

		done := make(chan struct{})
		for i := 0; i < 8; i++ {
			go func() {
				defer func() { done <- struct{}{} }()
				for j := 0; j < 100; j++ {
					_ = c.Set(ctx, "shared", sampleResult(), time.Minute)
					_, _ = c.Get(ctx, "shared")
				}
			}()
		}
		for i := 0; i < 8; i++ {
			<-done
		}

		got, err := c.Get(ctx, "shared")
		require.NoError(t, err)
		require.Equal(t, sampleResult(), got)
	})
}
