// Package server implements the per-connection event budget that protects
// the dispatcher from abusive clients.
package server

import (
	"sync"
	"time"
)

// tokenBucket meters inbound events for one connection. A connection may
// burst up to Burst events at once; spent budget refills continuously at a
// rate of Burst per RefillInterval, never exceeding the burst ceiling.
type tokenBucket struct {
	mu      sync.Mutex
	budget  float64
	ceiling float64
	perSec  float64
	updated time.Time
}

// newTokenBucket builds a bucket from the rate limit configuration,
// clamping degenerate values to the smallest working budget.
func newTokenBucket(cfg RateLimitConfig) *tokenBucket {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	return &tokenBucket{
		budget:  float64(burst),
		ceiling: float64(burst),
		perSec:  float64(burst) / interval.Seconds(),
		updated: time.Now(),
	}
}

// allow spends one token if the budget covers it. Events arriving with an
// empty budget are the caller's to discard.
func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(b.updated).Seconds(); elapsed > 0 {
		b.budget = min(b.budget+elapsed*b.perSec, b.ceiling)
	}
	b.updated = now

	if b.budget < 1 {
		return false
	}
	b.budget--
	return true
}
