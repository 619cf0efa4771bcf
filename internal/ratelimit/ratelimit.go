// Package ratelimit throttles write and conflict-check traffic per member.
//
// Keys are "<group>:<subject>". Each group (write, check, auth) can carry its
// own Quota, so an LLM-backed conflict check can be held to a few calls a
// minute while ordinary writes stay cheap.
package ratelimit

import (
	"context"
	"strings"
	"time"
)

// Quota is a token-bucket allowance: Rate tokens per second refill a bucket
// holding at most Burst tokens.
type Quota struct {
	Rate  float64
	Burst int
}

// Decision is the outcome of one Reserve call.
type Decision struct {
	Allowed bool
	// RetryAfter is how long until a token is available. Zero when allowed.
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Reserve consumes a token for key if one is available. A non-nil error
	// is a limiter malfunction; callers fail open.
	Reserve(ctx context.Context, key string) (Decision, error)

	// Close releases background resources.
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Reserve always allows.
func (NoopLimiter) Reserve(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }

// group returns the part of key before the first colon.
func group(key string) string {
	g, _, _ := strings.Cut(key, ":")
	return g
}
