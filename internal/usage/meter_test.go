package usage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/tonepipe/internal/domain"
	"github.com/davidbz/tonepipe/internal/usage"
)

// failingStore simulates an unreachable usage store.
type failingStore struct{}

func (s *failingStore) Get(_ context.Context, _, _ string) (*usage.Record, error) {
	return nil, errors.New("store unreachable")
}

func (s *failingStore) Add(_ context.Context, _, _ string, _ usage.Delta) error {
	return errors.New("store unreachable")
}

// denyingLimiter always reports the rate cap as reached.
type denyingLimiter struct{}

func (l *denyingLimiter) Allow(_ context.Context, _ string, _ int) (bool, error) {
	return false, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestMeter(t *testing.T, store usage.Store, opts ...usage.Option) *usage.Meter {
	t.Helper()

	pricing := domain.NewInMemoryPricingRegistry()
	ctx := context.Background()
	require.NoError(t, pricing.RegisterPricing(ctx, "gpt-3.5-turbo", domain.PricingConfig{
		InputCostPer1K:  0.0005,
		OutputCostPer1K: 0.0015,
	}))
	require.NoError(t, pricing.RegisterPricing(ctx, "gpt-4", domain.PricingConfig{
		InputCostPer1K:  0.03,
		OutputCostPer1K: 0.06,
	}))

	costs := domain.NewStandardCostCalculator(pricing)
	return usage.NewMeter(store, costs, usage.DefaultTierPolicies(), opts...)
}

func TestCheckQuota(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.June, 10, 12, 0, 0, 0, time.UTC)
	period := "2026-06"

	t.Run("should allow a user below every cap", func(t *testing.T) {
		meter := newTestMeter(t, usage.NewMemoryStore(), usage.WithClock(fixedClock(now)))

		require.NoError(t, meter.CheckQuota(ctx, "user-1", "gpt-3.5-turbo", usage.TierFree))
	})

	t.Run("should deny a model outside the tier's allowed set", func(t *testing.T) {
		meter := newTestMeter(t, usage.NewMemoryStore(), usage.WithClock(fixedClock(now)))

		err := meter.CheckQuota(ctx, "user-1", "gpt-4", usage.TierFree)

		require.Error(t, err)
		require.True(t, domain.IsQuotaDenied(err))
		require.Contains(t, err.Error(), "not available on the free tier")
	})

	t.Run("should deny at exactly the monthly rewrite cap and allow one below", func(t *testing.T) {
		store := usage.NewMemoryStore()
		meter := newTestMeter(t, store, usage.WithClock(fixedClock(now)))

		require.NoError(t, store.Add(ctx, "user-1", period, usage.Delta{Rewrites: 49}))
		require.NoError(t, meter.CheckQuota(ctx, "user-1", "gpt-3.5-turbo", usage.TierFree))

		require.NoError(t, store.Add(ctx, "user-1", period, usage.Delta{Rewrites: 1}))
		err := meter.CheckQuota(ctx, "user-1", "gpt-3.5-turbo", usage.TierFree)

		require.True(t, domain.IsQuotaDenied(err))
		require.Contains(t, err.Error(), "monthly limit of 50 rewrites reached")
	})

	t.Run("should deny when the monthly budget is exhausted", func(t *testing.T) {
		store := usage.NewMemoryStore()
		meter := newTestMeter(t, store, usage.WithClock(fixedClock(now)))

		require.NoError(t, store.Add(ctx, "user-1", period, usage.Delta{Rewrites: 1, CostUSD: 1.00}))

		err := meter.CheckQuota(ctx, "user-1", "gpt-3.5-turbo", usage.TierFree)

		require.True(t, domain.IsQuotaDenied(err))
		require.Contains(t, err.Error(), "monthly budget exhausted")
	})

	t.Run("should deny when the estimated request cost would exceed the budget", func(t *testing.T) {
		store := usage.NewMemoryStore()
		meter := newTestMeter(t, store, usage.WithClock(fixedClock(now)))

		// 2000 estimated tokens at a 60/40 split on gpt-3.5-turbo cost 0.0018.
		require.NoError(t, store.Add(ctx, "user-1", period, usage.Delta{Rewrites: 1, CostUSD: 0.999}))

		err := meter.CheckQuota(ctx, "user-1", "gpt-3.5-turbo", usage.TierFree)

		require.True(t, domain.IsQuotaDenied(err))
		require.Contains(t, err.Error(), "estimated request cost")
	})

	t.Run("should fail closed for the free tier when the store is unreachable", func(t *testing.T) {
		meter := newTestMeter(t, &failingStore{}, usage.WithClock(fixedClock(now)))

		err := meter.CheckQuota(ctx, "user-1", "gpt-3.5-turbo", usage.TierFree)

		require.True(t, domain.IsQuotaDenied(err))
		require.Contains(t, err.Error(), "temporarily unavailable")
	})

	t.Run("should fail open for paid tiers when the store is unreachable", func(t *testing.T) {
		meter := newTestMeter(t, &failingStore{}, usage.WithClock(fixedClock(now)))

		require.NoError(t, meter.CheckQuota(ctx, "user-1", "gpt-3.5-turbo", usage.TierPro))
	})

	t.Run("should deny when the hourly rate cap is reached", func(t *testing.T) {
		meter := newTestMeter(t, usage.NewMemoryStore(),
			usage.WithClock(fixedClock(now)),
			usage.WithRateLimiter(&denyingLimiter{}))

		err := meter.CheckQuota(ctx, "user-1", "gpt-3.5-turbo", usage.TierFree)

		require.True(t, domain.IsQuotaDenied(err))
		require.Contains(t, err.Error(), "hourly rate cap")
	})

	t.Run("should treat an unknown tier as free", func(t *testing.T) {
		meter := newTestMeter(t, usage.NewMemoryStore(), usage.WithClock(fixedClock(now)))

		err := meter.CheckQuota(ctx, "user-1", "gpt-4", "enterprise-legacy")

		require.True(t, domain.IsQuotaDenied(err))
	})
}

func TestRecordUsage(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.June, 10, 12, 0, 0, 0, time.UTC)
	period := "2026-06"

	t.Run("should use the exact split when both token counts are supplied", func(t *testing.T) {
		store := usage.NewMemoryStore()
		meter := newTestMeter(t, store, usage.WithClock(fixedClock(now)))

		meter.RecordUsage(ctx, "user-1", "gpt-4", 2000, 1000, 1000)

		record, err := store.Get(ctx, "user-1", period)
		require.NoError(t, err)
		require.Equal(t, 1, record.RewriteCount)
		require.Equal(t, int64(2000), record.TokenCount)
		require.InDelta(t, 0.09, record.CostUSD, 1e-9)
	})

	t.Run("should estimate with the 60/40 split when no split is supplied", func(t *testing.T) {
		store := usage.NewMemoryStore()
		meter := newTestMeter(t, store, usage.WithClock(fixedClock(now)))

		meter.RecordUsage(ctx, "user-1", "gpt-4", 2000, 0, 0)

		record, err := store.Get(ctx, "user-1", period)
		require.NoError(t, err)
		require.InDelta(t, 0.084, record.CostUSD, 1e-9)
	})

	t.Run("should fall back to the estimate when the split is partial", func(t *testing.T) {
		store := usage.NewMemoryStore()
		meter := newTestMeter(t, store, usage.WithClock(fixedClock(now)))

		// Only half the tokens carry a split; pricing just that half
		// would undercharge, so the whole total is estimated.
		meter.RecordUsage(ctx, "user-1", "gpt-4", 2000, 600, 400)

		record, err := store.Get(ctx, "user-1", period)
		require.NoError(t, err)
		require.Equal(t, int64(2000), record.TokenCount)
		require.InDelta(t, 0.084, record.CostUSD, 1e-9)
	})

	t.Run("should accumulate monotonically across calls", func(t *testing.T) {
		store := usage.NewMemoryStore()
		meter := newTestMeter(t, store, usage.WithClock(fixedClock(now)))

		meter.RecordUsage(ctx, "user-1", "gpt-3.5-turbo", 100, 60, 40)
		meter.RecordUsage(ctx, "user-1", "gpt-3.5-turbo", 200, 120, 80)

		record, err := store.Get(ctx, "user-1", period)
		require.NoError(t, err)
		require.Equal(t, 2, record.RewriteCount)
		require.Equal(t, int64(300), record.TokenCount)
	})

	t.Run("should swallow store failures", func(t *testing.T) {
		meter := newTestMeter(t, &failingStore{}, usage.WithClock(fixedClock(now)))

		require.NotPanics(t, func() {
			meter.RecordUsage(ctx, "user-1", "gpt-4", 2000, 1000, 1000)
		})
	})
}

func TestMonthRollover(t *testing.T) {
	ctx := context.Background()
	january := time.Date(2026, time.January, 20, 9, 0, 0, 0, time.UTC)
	february := time.Date(2026, time.February, 1, 0, 5, 0, 0, time.UTC)

	t.Run("should start a new month from a fresh zeroed record", func(t *testing.T) {
		store := usage.NewMemoryStore()
		clock := january
		meter := newTestMeter(t, store, usage.WithClock(func() time.Time { return clock }))

		// Exhaust January's cap.
		require.NoError(t, store.Add(ctx, "user-1", "2026-01", usage.Delta{Rewrites: 50}))
		err := meter.CheckQuota(ctx, "user-1", "gpt-3.5-turbo", usage.TierFree)
		require.True(t, domain.IsQuotaDenied(err))

		// The first access in February reads a zeroed record, not
		// January's totals.
		clock = february
		require.NoError(t, meter.CheckQuota(ctx, "user-1", "gpt-3.5-turbo", usage.TierFree))

		snapshot, err := meter.GetUsage(ctx, "user-1", usage.TierFree)
		require.NoError(t, err)
		require.Equal(t, "2026-02", snapshot.Period)
		require.Equal(t, 0, snapshot.RewriteCount)
		require.InDelta(t, 0.0, snapshot.CostUSD, 0)
	})
}

func TestGetUsage(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.June, 10, 12, 0, 0, 0, time.UTC)

	t.Run("should report utilization percentages and days remaining", func(t *testing.T) {
		store := usage.NewMemoryStore()
		meter := newTestMeter(t, store, usage.WithClock(fixedClock(now)))

		require.NoError(t, store.Add(ctx, "user-1", "2026-06", usage.Delta{
			Rewrites: 25,
			Tokens:   5000,
			CostUSD:  0.25,
		}))

		snapshot, err := meter.GetUsage(ctx, "user-1", usage.TierFree)
		require.NoError(t, err)

		require.Equal(t, "2026-06", snapshot.Period)
		require.Equal(t, 25, snapshot.RewriteCount)
		require.Equal(t, 50, snapshot.RewriteCap)
		require.InDelta(t, 50.0, snapshot.RewriteUtilization, 0)
		require.Equal(t, int64(5000), snapshot.TokenCount)
		require.InDelta(t, 25.0, snapshot.BudgetUtilization, 0)
		require.Equal(t, 20, snapshot.DaysRemaining)
	})

	t.Run("should report a zeroed snapshot for an untouched month", func(t *testing.T) {
		meter := newTestMeter(t, usage.NewMemoryStore(), usage.WithClock(fixedClock(now)))

		snapshot, err := meter.GetUsage(ctx, "user-9", usage.TierPro)
		require.NoError(t, err)
		require.Equal(t, 0, snapshot.RewriteCount)
		require.InDelta(t, 0.0, snapshot.RewriteUtilization, 0)
	})

	t.Run("should surface store errors to the caller", func(t *testing.T) {
		meter := newTestMeter(t, &failingStore{}, usage.WithClock(fixedClock(now)))

		_, err := meter.GetUsage(ctx, "user-1", usage.TierFree)
		require.Error(t, err)
	})
}
