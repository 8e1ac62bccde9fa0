package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter manages per-IP rate limiting using token bucket algorithm.
// It protects upstream indexes from being overwhelmed by bursts of
// client requests this proxy forwards on their behalf.
type RateLimiter struct {
	limiters sync.Map // map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	mu       sync.RWMutex

	cleanupInterval time.Duration
	idleTimeout     time.Duration
	stop            chan struct{}
}

// NewRateLimiter creates a new rate limiter with specified rate and burst.
// cleanupInterval and idleTimeout, if zero, fall back to 5 and 30 minutes.
func NewRateLimiter(r rate.Limit, b int, cleanupInterval, idleTimeout time.Duration) *RateLimiter {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	rl := &RateLimiter{
		rate:            r,
		burst:           b,
		cleanupInterval: cleanupInterval,
		idleTimeout:     idleTimeout,
		stop:            make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow checks if a request from the given IP should be allowed.
func (rl *RateLimiter) Allow(ip string) bool {
	limiter := rl.getLimiter(ip)
	return limiter.limiter.Allow()
}

// getLimiter retrieves or creates a limiter for the given IP.
func (rl *RateLimiter) getLimiter(ip string) *limiterEntry {
	if entry, ok := rl.limiters.Load(ip); ok {
		limiterEntry := entry.(*limiterEntry)
		limiterEntry.updateLastSeen()
		return limiterEntry
	}

	newEntry := newLimiterEntry(rl.rate, rl.burst)

	actual, loaded := rl.limiters.LoadOrStore(ip, newEntry)
	if loaded {
		entry := actual.(*limiterEntry)
		entry.updateLastSeen()
		return entry
	}

	return newEntry
}

// GetRate returns the current rate limit.
func (rl *RateLimiter) GetRate() rate.Limit {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.rate
}

// GetBurst returns the current burst size.
func (rl *RateLimiter) GetBurst() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.burst
}

// SetRate updates the rate limit for all future limiters.
func (rl *RateLimiter) SetRate(r rate.Limit) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.rate = r
}

// SetBurst updates the burst size for all future limiters.
func (rl *RateLimiter) SetBurst(b int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.burst = b
}
