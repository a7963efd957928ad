package provider

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket guarding calls against the free-tier
// request quotas of the upstream APIs.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     int
	capacity   int
	refillStep time.Duration
	lastRefill time.Time
}

// NewRateLimiter allows capacity calls immediately and then one more per
// refillStep.
func NewRateLimiter(capacity int, refillStep time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:     capacity,
		capacity:   capacity,
		refillStep: refillStep,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		if r.take() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.refillStep):
		}
	}
}

func (r *RateLimiter) take() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if earned := int(now.Sub(r.lastRefill) / r.refillStep); earned > 0 {
		r.tokens = min(r.tokens+earned, r.capacity)
		r.lastRefill = r.lastRefill.Add(time.Duration(earned) * r.refillStep)
	}
	if r.tokens == 0 {
		return false
	}
	r.tokens--
	return true
}
