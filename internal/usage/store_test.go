package usage_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/tonepipe/internal/domain"
	"github.com/davidbz/tonepipe/internal/usage"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("should return ErrUsageNotFound for an untouched period", func(t *testing.T) {
		store := usage.NewMemoryStore()

		_, err := store.Get(ctx, "user-1", "2026-06")

		require.ErrorIs(t, err, domain.ErrUsageNotFound)
	})

	t.Run("should create a record on first add", func(t *testing.T) {
		store := usage.NewMemoryStore()

		require.NoError(t, store.Add(ctx, "user-1", "2026-06", usage.Delta{
			Rewrites: 1,
			Tokens:   500,
			CostUSD:  0.01,
		}))

		record, err := store.Get(ctx, "user-1", "2026-06")
		require.NoError(t, err)
		require.Equal(t, "user-1", record.UserID)
		require.Equal(t, "2026-06", record.Period)
		require.Equal(t, 1, record.RewriteCount)
		require.Equal(t, int64(500), record.TokenCount)
	})

	t.Run("should keep periods independent", func(t *testing.T) {
		store := usage.NewMemoryStore()

		require.NoError(t, store.Add(ctx, "user-1", "2026-05", usage.Delta{Rewrites: 10}))
		require.NoError(t, store.Add(ctx, "user-1", "2026-06", usage.Delta{Rewrites: 2}))

		may, err := store.Get(ctx, "user-1", "2026-05")
		require.NoError(t, err)
		june, err := store.Get(ctx, "user-1", "2026-06")
		require.NoError(t, err)

		require.Equal(t, 10, may.RewriteCount)
		require.Equal(t, 2, june.RewriteCount)
	})

	t.Run("should not let callers mutate stored state through Get", func(t *testing.T) {
		store := usage.NewMemoryStore()
		require.NoError(t, store.Add(ctx, "user-1", "2026-06", usage.Delta{Rewrites: 1}))

		record, err := store.Get(ctx, "user-1", "2026-06")
		require.NoError(t, err)
		record.RewriteCount = 999

		fresh, err := store.Get(ctx, "user-1", "2026-06")
		require.NoError(t, err)
		require.Equal(t, 1, fresh.RewriteCount)
	})

	t.Run("should apply concurrent increments without losing updates", func(t *testing.T) {
		store := usage.NewMemoryStore()

		const workers = 16
		const addsPerWorker = 50

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < addsPerWorker; j++ {
					_ = store.Add(ctx, "user-1", "2026-06", usage.Delta{Rewrites: 1, Tokens: 10})
				}
			}()
		}
		wg.Wait()

		record, err := store.Get(ctx, "user-1", "2026-06")
		require.NoError(t, err)
		require.Equal(t, workers*addsPerWorker, record.RewriteCount)
		require.Equal(t, int64(workers*addsPerWorker*10), record.TokenCount)
	})
}
