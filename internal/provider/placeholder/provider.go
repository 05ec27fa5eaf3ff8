// Package placeholder provides the degraded-mode rewrite provider used
// when no real backend is configured. Its output is deterministic and
// clearly labeled, which keeps the pipeline testable without live
// credentials.
package placeholder

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/davidbz/tonepipe/internal/domain"
)

const providerName = "placeholder"

// Provider implements domain.RewriteProvider without any external call.
type Provider struct {
	name   string
	models []string
}

// NewProvider creates a placeholder provider claiming support for the
// given models. No configuration is required; it operates entirely
// in-memory.
func NewProvider(models ...string) *Provider {
	return &Provider{
		name:   providerName,
		models: models,
	}
}

// Rewrite returns the quoted source text from the payload unchanged,
// prefixed with an explicit placeholder label, and a word-based token
// estimate.
func (p *Provider) Rewrite(_ context.Context, _ string, payload string) (*domain.ProviderResult, error) {
	if payload == "" {
		return nil, errors.New("payload cannot be empty")
	}

	text := "[placeholder rewrite - no provider configured] " + extractSourceText(payload)

	inputTokens := countTokens(payload)
	outputTokens := countTokens(text)

	return &domain.ProviderResult{
		Text:         text,
		TotalTokens:  inputTokens + outputTokens,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// IsModelSupported reports true for every model: the placeholder is the
// fallback for whatever the caller asked for.
func (p *Provider) IsModelSupported(_ context.Context, _ string) bool {
	return true
}

// SupportedModels returns the models this provider was configured with.
func (p *Provider) SupportedModels(_ context.Context) []string {
	models := make([]string, len(p.models))
	copy(models, p.models)
	return models
}

// extractSourceText pulls the quoted source text out of an assembled
// payload. Falls back to the whole payload if the marker is missing.
func extractSourceText(payload string) string {
	const marker = "\nTEXT:\n"

	idx := strings.LastIndex(payload, marker)
	if idx < 0 {
		return payload
	}

	quoted := strings.TrimSpace(payload[idx+len(marker):])
	if unquoted, err := strconv.Unquote(quoted); err == nil {
		return unquoted
	}
	return quoted
}

// countTokens performs simple word-based token counting.
func countTokens(content string) int {
	if content == "" {
		return 0
	}
	return len(strings.Fields(content))
}
