package resilience

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/willibrandon/gonpm/observability"
)

// TokenBucketConfig holds token bucket configuration.
type TokenBucketConfig struct {
	// Burst is the bucket capacity.
	Burst int

	// PerSecond is the sustained refill rate.
	PerSecond float64
}

// DefaultTokenBucketConfig allows bursts of 64 requests and 32 req/s
// sustained per host.
func DefaultTokenBucketConfig() TokenBucketConfig {
	return TokenBucketConfig{Burst: 64, PerSecond: 32}
}

// TokenBucket is a token bucket rate limiter. It starts full.
type TokenBucket struct {
	mu       sync.Mutex
	burst    float64
	rate     float64
	tokens   float64
	refilled time.Time
	now      func() time.Time
}

// NewTokenBucket creates a full bucket.
func NewTokenBucket(config TokenBucketConfig) *TokenBucket {
	return &TokenBucket{
		burst:    float64(config.Burst),
		rate:     config.PerSecond,
		tokens:   float64(config.Burst),
		refilled: time.Now(),
		now:      time.Now,
	}
}

// take consumes a token, or returns how long until one is available.
func (tb *TokenBucket) take() (time.Duration, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	tb.tokens += now.Sub(tb.refilled).Seconds() * tb.rate
	if tb.tokens > tb.burst {
		tb.tokens = tb.burst
	}
	tb.refilled = now

	if tb.tokens >= 1 {
		tb.tokens--
		return 0, true
	}
	if tb.rate <= 0 {
		return time.Second, false
	}
	return time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second)), false
}

// Allow consumes a token if one is available.
func (tb *TokenBucket) Allow() bool {
	_, ok := tb.take()
	return ok
}

// Wait blocks until a token is consumed or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		wait, ok := tb.take()
		if ok {
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

// HostLimiter keeps one token bucket per registry host.
type HostLimiter struct {
	buckets *hostMap[*TokenBucket]
}

// NewHostLimiter creates per-host buckets sharing config.
func NewHostLimiter(config TokenBucketConfig) *HostLimiter {
	return &HostLimiter{
		buckets: newHostMap(func(string) *TokenBucket { return NewTokenBucket(config) }),
	}
}

// Wait blocks until host has a token available.
func (hl *HostLimiter) Wait(ctx context.Context, host string) error {
	tb := hl.buckets.get(host)
	immediate := tb.Allow()
	observability.RateLimitRequestsTotal.WithLabelValues(host, strconv.FormatBool(immediate)).Inc()
	if immediate {
		return nil
	}
	return tb.Wait(ctx)
}
