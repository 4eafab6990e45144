// Package config provides configuration management for the engine.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	Logging   LoggingConfig
	Engine    EngineConfig
	JWT       JWTConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// EngineConfig holds the default ConfigResolver bounds (spec.md §4.2).
type EngineConfig struct {
	DefaultTimeout       time.Duration
	DefaultMaxParallel   int
	DefaultMaxAttempts   int
	DefaultBackoffMult   int
	MaxParallelWarnAbove int
	TimeoutWarnAbove     time.Duration
}

// JWTConfig holds the JWT sub-guard's verification settings. When JWKSURL
// is set, the Verifier verifies against that remote key set instead of
// Secret (see internal/auth.NewVerifier). JWKSCooldown is reserved for a
// future minimum-refetch interval; oidc.RemoteKeySet currently manages its
// own refresh policy internally, so nothing reads this field yet.
type JWTConfig struct {
	Secret       string
	Algorithms   []string
	ClockSkew    time.Duration
	RolesClaim   string
	JWKSURL      string
	JWKSCooldown time.Duration
}

// RedisConfig holds the rate-limit guard's shared-store settings.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// RateLimitConfig holds the sliding-window rate-limit guard's operational
// settings (spec.md §4.8).
type RateLimitConfig struct {
	FailMode         string // "fail_open" or "fail_strict"
	StoreDownTimeout time.Duration
	FallbackMaxSize  int
	TrustedProxies   []string
	IPv6PrefixBits   int
}

// Load loads the configuration from environment variables, applying the
// documented engine defaults.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Logging: LoggingConfig{
			Level:  getEnv("INTENTGRAPH_LOG_LEVEL", "info"),
			Format: getEnv("INTENTGRAPH_LOG_FORMAT", "json"),
		},
		Engine: EngineConfig{
			DefaultTimeout:       getEnvAsDuration("INTENTGRAPH_DEFAULT_TIMEOUT", 300*time.Second),
			DefaultMaxParallel:   getEnvAsInt("INTENTGRAPH_DEFAULT_MAX_PARALLEL", 5),
			DefaultMaxAttempts:   getEnvAsInt("INTENTGRAPH_DEFAULT_MAX_ATTEMPTS", 3),
			DefaultBackoffMult:   getEnvAsInt("INTENTGRAPH_DEFAULT_BACKOFF_MULTIPLIER", 2),
			MaxParallelWarnAbove: getEnvAsInt("INTENTGRAPH_MAX_PARALLEL_WARN_ABOVE", 50),
			TimeoutWarnAbove:     getEnvAsDuration("INTENTGRAPH_TIMEOUT_WARN_ABOVE", 1800*time.Second),
		},
		JWT: JWTConfig{
			Secret:       getEnv("INTENTGRAPH_JWT_SECRET", ""),
			Algorithms:   getEnvAsSlice("INTENTGRAPH_JWT_ALGORITHMS", []string{"HS256"}),
			ClockSkew:    getEnvAsDuration("INTENTGRAPH_JWT_CLOCK_SKEW", 30*time.Second),
			RolesClaim:   getEnv("INTENTGRAPH_JWT_ROLES_CLAIM", "roles"),
			JWKSURL:      getEnv("INTENTGRAPH_JWT_JWKS_URL", ""),
			JWKSCooldown: getEnvAsDuration("INTENTGRAPH_JWT_JWKS_COOLDOWN", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      getEnv("INTENTGRAPH_REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("INTENTGRAPH_REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("INTENTGRAPH_REDIS_DB", 0),
			PoolSize: getEnvAsInt("INTENTGRAPH_REDIS_POOL_SIZE", 10),
		},
		RateLimit: RateLimitConfig{
			FailMode:         getEnv("INTENTGRAPH_RATELIMIT_FAIL_MODE", "fail_open"),
			StoreDownTimeout: getEnvAsDuration("INTENTGRAPH_RATELIMIT_STORE_DOWN_TIMEOUT", 10*time.Second),
			FallbackMaxSize:  getEnvAsInt("INTENTGRAPH_RATELIMIT_FALLBACK_MAX_SIZE", 10000),
			TrustedProxies:   getEnvAsSlice("INTENTGRAPH_RATELIMIT_TRUSTED_PROXIES", []string{}),
			IPv6PrefixBits:   getEnvAsInt("INTENTGRAPH_RATELIMIT_IPV6_PREFIX_BITS", 64),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Engine.DefaultMaxParallel < 1 || c.Engine.DefaultMaxParallel > 100 {
		return fmt.Errorf("default max parallel must be in 1..100, got %d", c.Engine.DefaultMaxParallel)
	}
	if c.Engine.DefaultMaxAttempts < 1 || c.Engine.DefaultMaxAttempts > 10 {
		return fmt.Errorf("default max attempts must be in 1..10, got %d", c.Engine.DefaultMaxAttempts)
	}
	if c.Engine.DefaultBackoffMult < 1 || c.Engine.DefaultBackoffMult > 10 {
		return fmt.Errorf("default backoff multiplier must be in 1..10, got %d", c.Engine.DefaultBackoffMult)
	}

	if c.RateLimit.FailMode != "fail_open" && c.RateLimit.FailMode != "fail_strict" {
		return fmt.Errorf("invalid rate limit fail mode: %s (must be fail_open or fail_strict)", c.RateLimit.FailMode)
	}

	return nil
}

// Helper functions for environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	current := ""
	for _, ch := range valueStr {
		if ch == ',' {
			if current != "" {
				result = append(result, current)
				current = ""
			}
		} else {
			current += string(ch)
		}
	}
	if current != "" {
		result = append(result, current)
	}
	return result
}
