// Package ratelimit provides the per-user token-bucket gate consulted by the
// RPC dispatchers. Aggregate-mode listings consume more tokens than
// single-page calls, so heavy multi-page fans pay for their upstream cost.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gate decides whether a dispatch is permitted to proceed. cost reflects the
// relative upstream expense of the call.
type Gate interface {
	Allow(ctx context.Context, key string, cost int) bool
}

// Config holds gate settings.
type Config struct {
	Rate            rate.Limit    // tokens per second per key
	Burst           int           // bucket size per key
	AggregateCost   int           // tokens consumed by an aggregate call
	CleanupInterval time.Duration // how often idle limiters are dropped
}

// DefaultConfig returns conservative defaults: 5 calls/s per user with a
// burst of 20, aggregates costing 5 single-page calls.
func DefaultConfig() Config {
	return Config{
		Rate:            5,
		Burst:           20,
		AggregateCost:   5,
		CleanupInterval: 5 * time.Minute,
	}
}

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a Gate keyed by user identity. Safe for concurrent use.
type Limiter struct {
	cfg Config

	mu          sync.Mutex
	perKey      map[string]*keyedLimiter
	lastCleanup time.Time
}

// New creates a Limiter with the given config.
func New(cfg Config) *Limiter {
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultConfig().Rate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultConfig().Burst
	}
	if cfg.AggregateCost <= 0 {
		cfg.AggregateCost = DefaultConfig().AggregateCost
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}
	return &Limiter{
		cfg:         cfg,
		perKey:      make(map[string]*keyedLimiter),
		lastCleanup: time.Now(),
	}
}

// AggregateCost returns the configured token cost of an aggregate call.
func (l *Limiter) AggregateCost() int {
	return l.cfg.AggregateCost
}

// Allow consumes cost tokens from the key's bucket, reporting whether the
// call may proceed.
func (l *Limiter) Allow(_ context.Context, key string, cost int) bool {
	if cost <= 0 {
		cost = 1
	}

	l.mu.Lock()
	kl, ok := l.perKey[key]
	if !ok {
		kl = &keyedLimiter{limiter: rate.NewLimiter(l.cfg.Rate, l.cfg.Burst)}
		l.perKey[key] = kl
	}
	now := time.Now()
	kl.lastSeen = now
	if now.Sub(l.lastCleanup) > l.cfg.CleanupInterval {
		l.cleanupLocked(now)
	}
	l.mu.Unlock()

	return kl.limiter.AllowN(now, cost)
}

// cleanupLocked drops limiters idle for longer than the cleanup interval.
// Must be called with mu held.
func (l *Limiter) cleanupLocked(now time.Time) {
	for key, kl := range l.perKey {
		if now.Sub(kl.lastSeen) > l.cfg.CleanupInterval {
			delete(l.perKey, key)
		}
	}
	l.lastCleanup = now
}
