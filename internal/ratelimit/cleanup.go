package ratelimit

import (
	"time"
)

// cleanupLoop runs in the background and removes idle limiters.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

// cleanup removes limiters that have been idle for more than idleTimeout.
func (rl *RateLimiter) cleanup() {
	now := time.Now()

	rl.limiters.Range(func(key, value interface{}) bool {
		ip := key.(string)
		entry := value.(*limiterEntry)

		lastSeen := entry.getLastSeen()
		if now.Sub(lastSeen) > rl.idleTimeout {
			rl.limiters.Delete(ip)
		}

		return true
	})
}

// Stop terminates the background cleanup goroutine.
func (rl *RateLimiter) Stop() error {
	close(rl.stop)
	return nil
}
