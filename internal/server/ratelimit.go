package server

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig bounds overall request throughput and per-source webhook
// delivery rates. When RedisAddr is set, event limits are tracked in Redis so
// every replica shares one budget; otherwise in-process buckets are used.
type RateLimitConfig struct {
	GlobalRPS     float64
	GlobalBurst   int
	EventLimit    int
	EventWindow   time.Duration
	RedisAddr     string
	RedisPassword string
	RedisTimeout  time.Duration
}

type rateLimiter struct {
	global       *tokenBucket
	eventLimit   int
	eventWindow  time.Duration
	eventMu      sync.Mutex
	eventBuckets map[string]*sourceLimiter
	store        tokenStore
}

type sourceLimiter struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

type tokenStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
	Close() error
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		eventLimit:   cfg.EventLimit,
		eventWindow:  cfg.EventWindow,
		eventBuckets: make(map[string]*sourceLimiter),
	}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = int(cfg.GlobalRPS)
			if burst < 1 {
				burst = 1
			}
		}
		rl.global = newTokenBucket(cfg.GlobalRPS, burst)
	}
	if rl.eventWindow <= 0 {
		rl.eventWindow = time.Minute
	}
	if cfg.RedisAddr != "" && rl.eventLimit > 0 {
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		rl.store = newRedisStore(cfg.RedisAddr, cfg.RedisPassword, timeout)
	}
	return rl
}

func (r *rateLimiter) AllowRequest() bool {
	if r == nil || r.global == nil {
		return true
	}
	return r.global.Allow()
}

// AllowEvent checks the per-source webhook budget. The second return value is
// how long the caller should wait before retrying when the budget is spent.
func (r *rateLimiter) AllowEvent(ctx context.Context, key string) (bool, time.Duration, error) {
	if r == nil || r.eventLimit <= 0 {
		return true, 0, nil
	}
	if r.store != nil {
		return r.store.Allow(ctx, fmt.Sprintf("streampulse:events:%s", key), r.eventLimit, r.eventWindow)
	}
	if key == "" {
		key = "unknown"
	}
	r.eventMu.Lock()
	limiter, exists := r.eventBuckets[key]
	if !exists {
		rate := float64(r.eventLimit) / r.eventWindow.Seconds()
		if rate <= 0 {
			rate = 1 / r.eventWindow.Seconds()
		}
		limiter = &sourceLimiter{bucket: newTokenBucket(rate, r.eventLimit)}
		r.eventBuckets[key] = limiter
	}
	limiter.lastSeen = time.Now()
	r.cleanupLocked()
	r.eventMu.Unlock()

	if limiter.bucket.Allow() {
		return true, 0, nil
	}
	return false, time.Second, nil
}

func (r *rateLimiter) Close() {
	if r == nil || r.store == nil {
		return
	}
	_ = r.store.Close()
}

func (r *rateLimiter) cleanupLocked() {
	if len(r.eventBuckets) == 0 {
		return
	}
	cutoff := time.Now().Add(-2 * r.eventWindow)
	for key, limiter := range r.eventBuckets {
		if limiter.lastSeen.Before(cutoff) {
			delete(r.eventBuckets, key)
		}
	}
}

type tokenBucket struct {
	mu        sync.Mutex
	rate      float64
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	now := time.Now()
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: now,
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(tb.lastCheck).Seconds()
	tb.lastCheck = now
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens -= 1
	return true
}
