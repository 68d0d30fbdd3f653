package config

import (
	"strings"
	"testing"
	"time"

	"photocloud.io/internal/ratelimit"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PHOTOCLOUD_TOKEN_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPAddr != ":8080" || cfg.Server.GRPCAddr != ":9090" {
		t.Fatalf("unexpected addresses %+v", cfg.Server)
	}
	if cfg.Permissions.CacheTTL != 5*time.Minute {
		t.Fatalf("expected 5m permission ttl, got %v", cfg.Permissions.CacheTTL)
	}
	if cfg.RateLimit.Backend != "local" || cfg.RateLimit.Policy != ratelimit.FailOpen {
		t.Fatalf("unexpected rate limit config %+v", cfg.RateLimit)
	}
	if cfg.Auth.DevTokens {
		t.Fatal("dev tokens must be off by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PHOTOCLOUD_TOKEN_SECRET", "s3cret")
	t.Setenv("PHOTOCLOUD_PERMISSION_CACHE_TTL", "90s")
	t.Setenv("PHOTOCLOUD_RATE_LIMIT_BACKEND", "redis")
	t.Setenv("PHOTOCLOUD_REDIS_ADDR", "localhost:6379")
	t.Setenv("PHOTOCLOUD_RATE_LIMIT_FAILURE_POLICY", "closed")
	t.Setenv("PHOTOCLOUD_PUBLIC_BASE_URL", "https://photos.example.com/")
	t.Setenv("PHOTOCLOUD_DEV_TOKENS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Permissions.CacheTTL != 90*time.Second {
		t.Fatalf("unexpected ttl %v", cfg.Permissions.CacheTTL)
	}
	if cfg.RateLimit.Policy != ratelimit.FailClosed {
		t.Fatalf("expected fail-closed policy")
	}
	if cfg.Shares.BaseURL != "https://photos.example.com" {
		t.Fatalf("unexpected base url %q", cfg.Shares.BaseURL)
	}
	if !cfg.Auth.DevTokens {
		t.Fatal("expected dev tokens enabled")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{}, "token secret"},
		{"redis without addr", map[string]string{"PHOTOCLOUD_TOKEN_SECRET": "x", "PHOTOCLOUD_RATE_LIMIT_BACKEND": "redis"}, "redis address"},
		{"unknown backend", map[string]string{"PHOTOCLOUD_TOKEN_SECRET": "x", "PHOTOCLOUD_RATE_LIMIT_BACKEND": "memcached"}, "invalid rate limit backend"},
		{"same addresses", map[string]string{"PHOTOCLOUD_TOKEN_SECRET": "x", "PHOTOCLOUD_GRPC_ADDR": ":8080"}, "must be different"},
		{"bad policy", map[string]string{"PHOTOCLOUD_TOKEN_SECRET": "x", "PHOTOCLOUD_RATE_LIMIT_FAILURE_POLICY": "maybe"}, "unknown failure policy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("PHOTOCLOUD_TOKEN_SECRET", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
