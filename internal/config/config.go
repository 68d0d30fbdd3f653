// Package config loads service configuration from PHOTOCLOUD_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"photocloud.io/internal/permcache"
	"photocloud.io/internal/ratelimit"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	Permissions PermissionsConfig
	RateLimit   RateLimitConfig
	Shares      SharesConfig
}

// ServerConfig holds HTTP and gRPC listener settings
type ServerConfig struct {
	HTTPAddr        string
	GRPCAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

type DatabaseConfig struct {
	DSN       string
	RedisAddr string
}

// AuthConfig configures bearer session tokens
type AuthConfig struct {
	TokenSecret string
	TokenIssuer string
	TokenTTL    time.Duration
	// DevTokens enables POST /v1/auth/token, which mints tokens without credentials.
	DevTokens bool
}

type PermissionsConfig struct {
	CacheTTL      time.Duration
	CacheCapacity int
}

// RateLimitConfig throttles anonymous share resolution per client IP
type RateLimitConfig struct {
	Backend   string // local | redis
	PerSecond float64
	Burst     int
	Window    time.Duration
	Policy    ratelimit.Policy
}

type SharesConfig struct {
	BaseURL string
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	policy, err := ratelimit.ParsePolicy(getEnv("PHOTOCLOUD_RATE_LIMIT_FAILURE_POLICY", "open"))
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Server: ServerConfig{
			HTTPAddr:        getEnv("PHOTOCLOUD_HTTP_ADDR", ":8080"),
			GRPCAddr:        getEnv("PHOTOCLOUD_GRPC_ADDR", ":9090"),
			ReadTimeout:     getEnvDuration("PHOTOCLOUD_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("PHOTOCLOUD_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("PHOTOCLOUD_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("PHOTOCLOUD_SHUTDOWN_TIMEOUT", 10*time.Second),
			MaxBodyBytes:    int64(getEnvInt("PHOTOCLOUD_MAX_BODY_BYTES", 1<<20)),
		},
		Database: DatabaseConfig{
			DSN:       getEnv("PHOTOCLOUD_PG_DSN", ""),
			RedisAddr: getEnv("PHOTOCLOUD_REDIS_ADDR", ""),
		},
		Auth: AuthConfig{
			TokenSecret: getEnv("PHOTOCLOUD_TOKEN_SECRET", ""),
			TokenIssuer: getEnv("PHOTOCLOUD_TOKEN_ISSUER", "photocloud"),
			TokenTTL:    getEnvDuration("PHOTOCLOUD_TOKEN_TTL", time.Hour),
			DevTokens:   getEnvBool("PHOTOCLOUD_DEV_TOKENS", false),
		},
		Permissions: PermissionsConfig{
			CacheTTL:      getEnvDuration("PHOTOCLOUD_PERMISSION_CACHE_TTL", permcache.DefaultTTL),
			CacheCapacity: getEnvInt("PHOTOCLOUD_PERMISSION_CACHE_CAPACITY", permcache.DefaultCapacity),
		},
		RateLimit: RateLimitConfig{
			Backend:   strings.ToLower(getEnv("PHOTOCLOUD_RATE_LIMIT_BACKEND", "local")),
			PerSecond: getEnvFloat("PHOTOCLOUD_RATE_LIMIT_PER_SECOND", 5),
			Burst:     getEnvInt("PHOTOCLOUD_RATE_LIMIT_BURST", 20),
			Window:    getEnvDuration("PHOTOCLOUD_RATE_LIMIT_WINDOW", time.Minute),
			Policy:    policy,
		},
		Shares: SharesConfig{
			BaseURL: strings.TrimRight(getEnv("PHOTOCLOUD_PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("http address is required")
	}
	if c.Server.GRPCAddr != "" && c.Server.GRPCAddr == c.Server.HTTPAddr {
		return fmt.Errorf("http and grpc addresses must be different")
	}
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("token secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	if c.Permissions.CacheTTL <= 0 {
		return fmt.Errorf("permission cache ttl must be positive")
	}
	if c.Permissions.CacheCapacity <= 0 {
		return fmt.Errorf("permission cache capacity must be positive")
	}
	switch c.RateLimit.Backend {
	case "local":
		if c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate limit per second and burst must be positive")
		}
	case "redis":
		if c.Database.RedisAddr == "" {
			return fmt.Errorf("redis address is required for redis rate limiting")
		}
		if c.RateLimit.Burst <= 0 || c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit burst and window must be positive")
		}
	default:
		return fmt.Errorf("invalid rate limit backend: %s (must be local or redis)", c.RateLimit.Backend)
	}
	if c.Shares.BaseURL == "" {
		return fmt.Errorf("public base url is required")
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
