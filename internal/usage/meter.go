// Package usage meters per-user monthly consumption and enforces
// tier-based quota and budget limits.
package usage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/davidbz/tonepipe/internal/domain"
	"github.com/davidbz/tonepipe/internal/observability"
	"github.com/davidbz/tonepipe/internal/ratelimit"
)

const (
	// Quota pre-checks estimate cost for a typical request with a fixed
	// assumed token count regardless of actual input length.
	estimatedTokensPerRequest = 2000

	// Input/output split convention used whenever an exact split is not
	// known. Shared by pre-checks and recording.
	inputTokenShare = 0.6

	// Recorded cost is kept at micro-dollar precision.
	costPrecision = 1e6
)

// Meter implements quota checking, usage recording and usage reporting
// against an abstract store.
type Meter struct {
	store    Store
	costs    domain.CostCalculator
	policies map[string]TierPolicy
	limiter  ratelimit.Limiter
	now      func() time.Time
}

// Option configures a Meter.
type Option func(*Meter)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Meter) {
		m.now = now
	}
}

// WithRateLimiter sets the limiter enforcing the tier's hourly rate cap.
func WithRateLimiter(limiter ratelimit.Limiter) Option {
	return func(m *Meter) {
		m.limiter = limiter
	}
}

// NewMeter creates a usage meter.
func NewMeter(store Store, costs domain.CostCalculator, policies map[string]TierPolicy, opts ...Option) *Meter {
	m := &Meter{
		store:    store,
		costs:    costs,
		policies: policies,
		limiter:  ratelimit.NewNoopLimiter(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// PolicyFor returns the policy for a tier, falling back to the free
// tier for unknown identifiers.
func (m *Meter) PolicyFor(tier string) TierPolicy {
	if policy, exists := m.policies[tier]; exists {
		return policy
	}
	return m.policies[TierFree]
}

// CheckQuota decides whether a rewrite may proceed. It returns nil to
// allow, a *domain.QuotaDeniedError to deny, and never any other error:
// internal faults resolve through the tier's fail-open/fail-closed
// policy. Note that CheckQuota and RecordUsage are deliberately not
// atomic together; two concurrent requests from a near-quota user can
// both pass and briefly overshoot. This is an accepted soft limit, not
// a billing guarantee.
func (m *Meter) CheckQuota(ctx context.Context, userID, model, tier string) error {
	logger := observability.FromContext(ctx)
	policy := m.PolicyFor(tier)

	if !policy.AllowedModels[model] {
		return &domain.QuotaDeniedError{
			Reason: fmt.Sprintf("model %s is not available on the %s tier", model, policy.ID),
		}
	}

	allowed, err := m.limiter.Allow(ctx, userID, policy.HourlyRateCap)
	if err != nil {
		logger.Warn("rate limiter unavailable", observability.Error(err))
		if !policy.FailOpen {
			return &domain.QuotaDeniedError{Reason: "usage state is temporarily unavailable"}
		}
	} else if !allowed {
		return &domain.QuotaDeniedError{
			Reason: fmt.Sprintf("hourly rate cap of %d requests reached", policy.HourlyRateCap),
		}
	}

	record, err := m.currentRecord(ctx, userID)
	if err != nil {
		logger.Warn("failed to read usage record",
			observability.String("tier", policy.ID),
			observability.Error(err))
		if policy.FailOpen {
			return nil
		}
		return &domain.QuotaDeniedError{Reason: "usage state is temporarily unavailable"}
	}

	if record.RewriteCount >= policy.MonthlyRewriteCap {
		return &domain.QuotaDeniedError{
			Reason: fmt.Sprintf("monthly limit of %d rewrites reached", policy.MonthlyRewriteCap),
		}
	}

	if record.CostUSD >= policy.MonthlyBudgetUSD {
		return &domain.QuotaDeniedError{Reason: "monthly budget exhausted"}
	}

	estimate := m.estimateCost(ctx, model, estimatedTokensPerRequest)
	if record.CostUSD+estimate > policy.MonthlyBudgetUSD {
		return &domain.QuotaDeniedError{Reason: "estimated request cost would exceed the monthly budget"}
	}

	return nil
}

// RecordUsage increments the current month's rewrite count, token count
// and cost. The exact input/output split is used only when it accounts
// for every token; a missing or partial split (a retried request where
// one attempt reported no split) falls back to the shared estimate
// convention rather than pricing only part of the total. Recording
// failures are logged and swallowed: a metering failure must never fail
// an otherwise-successful rewrite.
func (m *Meter) RecordUsage(ctx context.Context, userID, model string, totalTokens, inputTokens, outputTokens int) {
	logger := observability.FromContext(ctx)

	var cost float64
	if totalTokens > 0 && inputTokens+outputTokens == totalTokens {
		cost, _ = m.costs.Calculate(ctx, model, inputTokens, outputTokens)
	} else {
		cost = m.estimateCost(ctx, model, totalTokens)
	}
	cost = math.Round(cost*costPrecision) / costPrecision

	period := monthKey(m.now())
	delta := Delta{
		Rewrites: 1,
		Tokens:   int64(totalTokens),
		CostUSD:  cost,
	}

	if err := m.store.Add(ctx, userID, period, delta); err != nil {
		logger.Error("failed to record usage",
			observability.String("period", period),
			observability.Int("total_tokens", totalTokens),
			observability.Error(err))
		return
	}

	logger.Info("usage recorded",
		observability.String("period", period),
		observability.Int("total_tokens", totalTokens),
		observability.Float64("cost_usd", cost))
}

// Snapshot is the read-only usage view returned to callers.
type Snapshot struct {
	UserID             string  `json:"user_id"`
	Period             string  `json:"period"`
	Tier               string  `json:"tier"`
	RewriteCount       int     `json:"rewrite_count"`
	RewriteCap         int     `json:"rewrite_cap"`
	RewriteUtilization float64 `json:"rewrite_utilization_pct"`
	TokenCount         int64   `json:"token_count"`
	CostUSD            float64 `json:"cost_usd"`
	BudgetUSD          float64 `json:"budget_usd"`
	BudgetUtilization  float64 `json:"budget_utilization_pct"`
	DaysRemaining      int     `json:"days_remaining"`
}

// GetUsage returns the current month's usage with utilization
// percentages and days remaining in the month.
func (m *Meter) GetUsage(ctx context.Context, userID, tier string) (*Snapshot, error) {
	policy := m.PolicyFor(tier)

	record, err := m.currentRecord(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage record: %w", err)
	}

	now := m.now()
	snapshot := &Snapshot{
		UserID:             userID,
		Period:             record.Period,
		Tier:               policy.ID,
		RewriteCount:       record.RewriteCount,
		RewriteCap:         policy.MonthlyRewriteCap,
		RewriteUtilization: utilization(float64(record.RewriteCount), float64(policy.MonthlyRewriteCap)),
		TokenCount:         record.TokenCount,
		CostUSD:            record.CostUSD,
		BudgetUSD:          policy.MonthlyBudgetUSD,
		BudgetUtilization:  utilization(record.CostUSD, policy.MonthlyBudgetUSD),
		DaysRemaining:      daysRemainingInMonth(now),
	}

	return snapshot, nil
}

// currentRecord always reads the wall-clock month's record. A missing
// record means the month has not been touched yet and reads as zeroed;
// prior months' totals are never inherited.
func (m *Meter) currentRecord(ctx context.Context, userID string) (*Record, error) {
	period := monthKey(m.now())

	record, err := m.store.Get(ctx, userID, period)
	if err != nil {
		if errors.Is(err, domain.ErrUsageNotFound) {
			return &Record{
				UserID:       userID,
				Period:       period,
				RewriteCount: 0,
				TokenCount:   0,
				CostUSD:      0,
			}, nil
		}
		return nil, err
	}

	return record, nil
}

func (m *Meter) estimateCost(ctx context.Context, model string, totalTokens int) float64 {
	inputTokens := int(float64(totalTokens) * inputTokenShare)
	outputTokens := totalTokens - inputTokens

	cost, _ := m.costs.Calculate(ctx, model, inputTokens, outputTokens)
	return cost
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func utilization(used, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	pct := used / limit * 100
	if pct > 100 {
		pct = 100
	}
	return math.Round(pct*10) / 10
}

func daysRemainingInMonth(t time.Time) int {
	u := t.UTC()
	lastDay := time.Date(u.Year(), u.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	return lastDay - u.Day()
}
