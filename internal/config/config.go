package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/tonepipe/internal/provider/openai"
)

// Config represents the service configuration.
type Config struct {
	Server    ServerConfig
	CORS      CORSConfig
	OpenAI    openai.Config
	Cache     CacheConfig
	Redis     RedisConfig
	Usage     UsageConfig
	Ratelimit RatelimitConfig
	Limits    LimitsConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"30"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization,X-User-Id,X-User-Tier"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// CacheConfig contains response cache settings.
type CacheConfig struct {
	Backend       string `env:"CACHE_BACKEND"        envDefault:"memory"` // memory | redis
	TTLSeconds    int    `env:"CACHE_TTL"            envDefault:"600"`
	SweepInterval int    `env:"CACHE_SWEEP_INTERVAL" envDefault:"60"`
}

// RedisConfig contains Redis connection settings, used by the redis
// cache backend and the rate limiter.
type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"  envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"       envDefault:"0"`
}

// UsageConfig selects the usage store backend.
type UsageConfig struct {
	Backend     string `env:"USAGE_BACKEND"      envDefault:"memory"` // memory | postgres
	PostgresDSN string `env:"USAGE_POSTGRES_DSN"`
}

// RatelimitConfig selects the hourly rate limiter backend. The limiter
// is independent of the cache backend: an in-memory cache can still run
// with Redis-enforced rate caps.
type RatelimitConfig struct {
	Backend string `env:"RATELIMIT_BACKEND" envDefault:"noop"` // noop | redis
}

// LimitsConfig contains request validation limits.
type LimitsConfig struct {
	MaxTextLength int `env:"MAX_TEXT_LENGTH" envDefault:"10000"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*openai.Config
	*CacheConfig
	*RedisConfig
	*UsageConfig
	*RatelimitConfig
	*LimitsConfig
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		dig.Out{},
		&cfg.Server,
		&cfg.CORS,
		&cfg.OpenAI,
		&cfg.Cache,
		&cfg.Redis,
		&cfg.Usage,
		&cfg.Ratelimit,
		&cfg.Limits,
	}
}
