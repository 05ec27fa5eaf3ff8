package main

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"github.com/davidbz/tonepipe/internal/cache"
	"github.com/davidbz/tonepipe/internal/config"
	"github.com/davidbz/tonepipe/internal/domain"
	"github.com/davidbz/tonepipe/internal/http"
	"github.com/davidbz/tonepipe/internal/http/middleware"
	"github.com/davidbz/tonepipe/internal/observability"
	"github.com/davidbz/tonepipe/internal/pipeline"
	"github.com/davidbz/tonepipe/internal/provider/openai"
	"github.com/davidbz/tonepipe/internal/provider/placeholder"
	"github.com/davidbz/tonepipe/internal/provider/registry"
	"github.com/davidbz/tonepipe/internal/ratelimit"
	"github.com/davidbz/tonepipe/internal/usage"
)

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *http.Server) {
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

//nolint:funlen // Container wiring is long but linear
func buildContainer() *dig.Container {
	container := dig.New()

	provide := func(constructor interface{}) {
		if err := container.Provide(constructor); err != nil {
			log.Fatalf("Failed to provide dependency: %v", err)
		}
	}

	// Configuration
	provide(config.Load)
	provide(config.ParseDependenciesConfig)

	// Observability
	provide(observability.InitLogger)

	// Redis client, shared by the redis cache backend and the rate
	// limiter. Nil when neither needs it.
	provide(func(cfg *config.Config) *redis.Client {
		if cfg.Cache.Backend != "redis" && cfg.Ratelimit.Backend != "redis" {
			return nil
		}
		return redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	})

	// Pricing
	provide(func() domain.PricingRegistry {
		return domain.NewInMemoryPricingRegistry()
	})
	provide(func(pricing domain.PricingRegistry) domain.CostCalculator {
		return domain.NewStandardCostCalculator(pricing)
	})

	// Provider registry
	provide(func() domain.ProviderRegistry {
		return registry.NewRegistry()
	})

	// Usage store
	provide(func(cfg *config.Config) (usage.Store, error) {
		if cfg.Usage.Backend == "postgres" {
			return usage.NewPostgresStore(cfg.Usage.PostgresDSN)
		}
		return usage.NewMemoryStore(), nil
	})

	// Rate limiter
	provide(func(cfg *config.Config, client *redis.Client) ratelimit.Limiter {
		if cfg.Ratelimit.Backend != "redis" || client == nil {
			return ratelimit.NewNoopLimiter()
		}
		return ratelimit.NewSlidingWindowLimiter(client)
	})

	// Usage meter
	provide(func(store usage.Store, costs domain.CostCalculator, limiter ratelimit.Limiter) *usage.Meter {
		return usage.NewMeter(store, costs, usage.DefaultTierPolicies(), usage.WithRateLimiter(limiter))
	})

	// Response cache
	provide(func(cfg *config.Config, client *redis.Client) domain.ResponseCache {
		if cfg.Cache.Backend == "redis" && client != nil {
			return cache.NewRedisCache(client)
		}
		return cache.NewMemoryCache(time.Duration(cfg.Cache.SweepInterval) * time.Second)
	})

	// Pipeline
	provide(func(
		reg domain.ProviderRegistry,
		responseCache domain.ResponseCache,
		meter *usage.Meter,
		cfg *config.Config,
	) *pipeline.Orchestrator {
		ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
		return pipeline.NewOrchestrator(reg, responseCache, meter, ttl)
	})

	// HTTP Layer
	provide(http.NewHandler)
	provide(func(corsConfig *config.CORSConfig) middleware.Middleware {
		return middleware.BuildMiddlewareChain(corsConfig)
	})
	provide(http.NewServer)

	// Register pricing and providers (invoked for side effects)
	if err := container.Invoke(registerProviders); err != nil {
		log.Fatalf("Failed to register providers: %v", err)
	}

	return container
}

// registerProviders populates the pricing table and registers the
// configured rewrite backend. Without an API key the service degrades
// to the clearly-labeled placeholder provider so the pipeline stays
// usable without live credentials.
func registerProviders(
	cfg *config.Config,
	reg domain.ProviderRegistry,
	pricing domain.PricingRegistry,
) error {
	ctx := context.Background()

	if err := openai.RegisterPricing(ctx, pricing); err != nil {
		return err
	}

	if cfg.OpenAI.APIKey != "" {
		openaiProvider, err := openai.NewProvider(cfg.OpenAI)
		if err != nil {
			return err
		}
		return reg.Register(ctx, openaiProvider)
	}

	observability.FromContext(ctx).Warn("no provider configured, using placeholder responses")

	fallback := placeholder.NewProvider("gpt-3.5-turbo", "gpt-4-turbo", "gpt-4")
	return reg.Register(ctx, fallback)
}
