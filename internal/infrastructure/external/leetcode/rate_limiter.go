package leetcode

import (
	"context"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - token bucket shared by every fetch of a sweep
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiterConfig configures the token bucket.
type RateLimiterConfig struct {
	// RequestsPerMinute is the sustained rate.
	RequestsPerMinute int
	// Burst is the bucket size.
	Burst int
	// DefaultPenalty is how long to pause after a 429 without Retry-After.
	DefaultPenalty time.Duration
}

// DefaultRateLimiterConfig is gentle enough for the public endpoint.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerMinute: 60,
		Burst:             5,
		DefaultPenalty:    30 * time.Second,
	}
}

// RateLimiter is a token bucket with a pause switch for server throttling.
type RateLimiter struct {
	mu          sync.Mutex
	capacity    float64
	perSecond   float64
	tokens      float64
	lastRefill  time.Time
	pausedUntil time.Time
	penalty     time.Duration
	now         func() time.Time
}

// NewRateLimiter creates a full bucket.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRateLimiterConfig().RequestsPerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.DefaultPenalty <= 0 {
		cfg.DefaultPenalty = DefaultRateLimiterConfig().DefaultPenalty
	}
	return &RateLimiter{
		capacity:   float64(cfg.Burst),
		perSecond:  float64(cfg.RequestsPerMinute) / 60.0,
		tokens:     float64(cfg.Burst),
		lastRefill: time.Now(),
		penalty:    cfg.DefaultPenalty,
		now:        time.Now,
	}
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait := rl.reserve()
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve takes a token and returns 0, or returns how long to wait.
func (rl *RateLimiter) reserve() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Before(rl.pausedUntil) {
		return rl.pausedUntil.Sub(now)
	}

	if elapsed := now.Sub(rl.lastRefill).Seconds(); elapsed > 0 {
		rl.tokens = min(rl.capacity, rl.tokens+elapsed*rl.perSecond)
		rl.lastRefill = now
	}

	if rl.tokens >= 1 {
		rl.tokens--
		return 0
	}
	return time.Duration((1 - rl.tokens) / rl.perSecond * float64(time.Second))
}

// Penalize drains the bucket and pauses all callers after the server
// signalled throttling. A zero retryAfter uses the configured default.
func (rl *RateLimiter) Penalize(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = rl.penalty
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = 0
	if until := rl.now().Add(retryAfter); until.After(rl.pausedUntil) {
		rl.pausedUntil = until
	}
}

// Available returns the current token count, for diagnostics.
func (rl *RateLimiter) Available() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.tokens
}
