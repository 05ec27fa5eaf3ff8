package domain

import (
	"context"
	"time"
)

// RewriteProvider represents any text-generation backend able to execute
// an assembled instruction payload.
type RewriteProvider interface {
	// Rewrite sends the instruction payload and returns the generated text
	// together with token usage.
	Rewrite(ctx context.Context, model string, payload string) (*ProviderResult, error)

	// Name returns the provider identifier.
	Name() string

	// IsModelSupported checks if the provider supports the given model.
	IsModelSupported(ctx context.Context, model string) bool

	// SupportedModels returns all models this provider supports.
	SupportedModels(ctx context.Context) []string
}

// ProviderRegistry manages available rewrite providers.
type ProviderRegistry interface {
	// Register adds a provider to the registry.
	Register(ctx context.Context, provider RewriteProvider) error

	// Get retrieves a provider by name.
	Get(ctx context.Context, providerName string) (RewriteProvider, error)

	// GetByModel retrieves a provider that supports the given model.
	GetByModel(ctx context.Context, model string) (RewriteProvider, error)

	// List returns all available provider names.
	List(ctx context.Context) ([]string, error)
}

// ResponseCache deduplicates semantically identical rewrite requests.
// Implementations must be safe for concurrent use.
type ResponseCache interface {
	// Get returns the cached result for a fingerprint, or ErrCacheMiss.
	// Entries past their expiry are never returned.
	Get(ctx context.Context, key string) (*RewriteResult, error)

	// Set stores a result under a fingerprint with a per-entry TTL.
	Set(ctx context.Context, key string, result *RewriteResult, ttl time.Duration) error
}
