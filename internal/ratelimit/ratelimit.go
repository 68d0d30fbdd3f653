// Package ratelimit throttles anonymous callers per key with an explicit failure policy.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"photocloud.io/internal/obs"
)

var ErrUnknownPolicy = errors.New("ratelimit: unknown failure policy")

// Limiter admits or rejects one request for key. An error means the decision could not be
// made; the returned bool is then meaningless.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Policy decides what a failed limiter check means.
type Policy int

const (
	FailOpen Policy = iota
	FailClosed
)

func (p Policy) String() string {
	if p == FailClosed {
		return "closed"
	}
	return "open"
}

// ParsePolicy accepts "open" or "closed".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "open":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	default:
		return FailOpen, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Guarded applies a Policy to limiter errors.
type Guarded struct {
	limiter Limiter
	policy  Policy
}

func NewGuarded(l Limiter, p Policy) *Guarded {
	return &Guarded{limiter: l, policy: p}
}

// Allow never returns an error: failures resolve to the policy's answer.
func (g *Guarded) Allow(ctx context.Context, key string) bool {
	ok, err := g.limiter.Allow(ctx, key)
	if err == nil {
		return ok
	}
	obs.LogEvent("warn", "rate limit check failed", map[string]any{
		"key":    key,
		"policy": g.policy.String(),
		"error":  err.Error(),
	})
	return g.policy == FailOpen
}
