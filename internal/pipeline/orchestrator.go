// Package pipeline composes normalization, conflict resolution, prompt
// assembly, caching, quota enforcement, the provider call, guardrail
// verification and usage recording into the end-to-end rewrite
// lifecycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/davidbz/tonepipe/internal/cache"
	"github.com/davidbz/tonepipe/internal/domain"
	"github.com/davidbz/tonepipe/internal/guardrail"
	"github.com/davidbz/tonepipe/internal/metrics"
	"github.com/davidbz/tonepipe/internal/observability"
	"github.com/davidbz/tonepipe/internal/prompt"
	"github.com/davidbz/tonepipe/internal/tone"
	"github.com/davidbz/tonepipe/internal/usage"
)

// Orchestrator runs the rewrite pipeline. Requests execute
// independently end-to-end; the only shared mutable state lives behind
// the cache and the usage store.
type Orchestrator struct {
	registry domain.ProviderRegistry
	cache    domain.ResponseCache
	meter    *usage.Meter
	cacheTTL time.Duration

	// Coalesces concurrent identical requests from the same user (for
	// example multiple browser tabs) so the provider is called once.
	// Keyed per user: coalescing across users would skip the second
	// user's quota check and usage accounting.
	flights singleflight.Group
}

// NewOrchestrator creates the pipeline orchestrator (DI constructor).
func NewOrchestrator(
	registry domain.ProviderRegistry,
	responseCache domain.ResponseCache,
	meter *usage.Meter,
	cacheTTL time.Duration,
) *Orchestrator {
	if cacheTTL <= 0 {
		cacheTTL = cache.DefaultTTL
	}

	return &Orchestrator{
		registry: registry,
		cache:    responseCache,
		meter:    meter,
		cacheTTL: cacheTTL,
		flights:  singleflight.Group{},
	}
}

// Rewrite handles one rewrite request end-to-end. Quota denials are
// returned as *domain.QuotaDeniedError; provider failures surface as
// errors; guardrail violations that survive the retry are returned as
// data on a successful result.
func (o *Orchestrator) Rewrite(ctx context.Context, req *domain.RewriteRequest) (*domain.RewriteResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if req.Text == "" {
		return nil, errors.New("text cannot be empty")
	}
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	if req.UserID == "" {
		return nil, errors.New("user id cannot be empty")
	}

	start := time.Now()
	logger := observability.FromContext(ctx)

	resolution := tone.Resolve(req.Dimensions)
	payload := prompt.Assemble(req.Text, resolution, req.Guardrails)
	key := cache.Fingerprint(req)

	cached, err := o.cache.Get(ctx, key)
	switch {
	case err == nil:
		// A hit short-circuits quota, provider and metering. The stored
		// processing time is replaced with this request's elapsed time.
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		logger.Info("cache hit", observability.String("cache_key", key))

		result := *cached
		result.ProcessingMS = time.Since(start).Milliseconds()
		return &result, nil
	case errors.Is(err, domain.ErrCacheMiss):
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	default:
		// A cache fault is a miss, never a user-visible error.
		metrics.CacheLookups.WithLabelValues("error").Inc()
		logger.Warn("cache get failed, continuing without cache", observability.Error(err))
	}

	shared, err, _ := o.flights.Do(key+"|"+req.UserID, func() (interface{}, error) {
		return o.execute(ctx, req, resolution, payload, key)
	})
	if err != nil {
		return nil, err
	}

	result := *shared.(*domain.RewriteResult)
	result.ProcessingMS = time.Since(start).Milliseconds()

	metrics.RewriteDuration.Observe(time.Since(start).Seconds())
	return &result, nil
}

// execute runs the cache-miss path: quota check, provider call,
// guardrail verification with the single bounded retry, usage recording
// and cache write-back.
func (o *Orchestrator) execute(
	ctx context.Context,
	req *domain.RewriteRequest,
	resolution domain.ConflictResolution,
	payload string,
	key string,
) (*domain.RewriteResult, error) {
	logger := observability.FromContext(ctx)

	if err := o.meter.CheckQuota(ctx, req.UserID, req.Model, req.Tier); err != nil {
		metrics.QuotaDenials.WithLabelValues(req.Tier).Inc()
		logger.Info("quota denied", observability.Error(err))
		return nil, err
	}

	provider, err := o.registry.GetByModel(ctx, req.Model)
	if err != nil {
		return nil, fmt.Errorf("provider routing failed: %w", err)
	}

	// Once the provider call starts, metering and caching must run to
	// completion even if the caller disconnects; a half-recorded,
	// half-cached state is not acceptable. The response is simply not
	// delivered.
	callCtx := context.WithoutCancel(ctx)

	first, err := provider.Rewrite(callCtx, req.Model, payload)
	if err != nil {
		metrics.ProviderCalls.WithLabelValues(provider.Name(), req.Model, "error").Inc()
		return nil, fmt.Errorf("rewrite failed: %w", err)
	}
	metrics.ProviderCalls.WithLabelValues(provider.Name(), req.Model, "success").Inc()

	finalText := first.Text
	finalViolations := guardrail.Verify(req.Text, first.Text, req.Guardrails)
	totalTokens := first.TotalTokens
	inputTokens := first.InputTokens
	outputTokens := first.OutputTokens

	if len(finalViolations) > 0 {
		logger.Info("guardrail violations found, retrying once",
			observability.Int("violations", len(finalViolations)))
		metrics.GuardrailRetries.Inc()

		retryPayload := prompt.AssembleRetry(req.Text, resolution, req.Guardrails, finalViolations)

		second, retryErr := provider.Rewrite(callCtx, req.Model, retryPayload)
		if retryErr != nil {
			// The built-in retry exists for guardrail compliance, not
			// for provider errors. The first attempt stands.
			metrics.ProviderCalls.WithLabelValues(provider.Name(), req.Model, "error").Inc()
			logger.Warn("compliance retry failed, keeping first attempt", observability.Error(retryErr))
		} else {
			metrics.ProviderCalls.WithLabelValues(provider.Name(), req.Model, "success").Inc()

			// Both attempts ran; both attempts' token costs are accounted.
			totalTokens += second.TotalTokens
			inputTokens += second.InputTokens
			outputTokens += second.OutputTokens

			// Keep the first attempt's text unless the retry measurably
			// improved compliance.
			retryViolations := guardrail.Verify(req.Text, second.Text, req.Guardrails)
			if len(retryViolations) < len(finalViolations) {
				finalText = second.Text
				finalViolations = retryViolations
			}
		}
	}

	metrics.TokensUsed.WithLabelValues(req.Model).Add(float64(totalTokens))
	o.meter.RecordUsage(callCtx, req.UserID, req.Model, totalTokens, inputTokens, outputTokens)

	result := &domain.RewriteResult{
		RewrittenText: finalText,
		OriginalText:  req.Text,
		Model:         req.Model,
		ProcessingMS:  0, // set by the caller from its own clock
		TokensUsed:    totalTokens,
		Violations:    finalViolations,
	}

	if setErr := o.cache.Set(callCtx, key, result, o.cacheTTL); setErr != nil {
		logger.Warn("failed to store in cache", observability.Error(setErr))
	}

	return result, nil
}
