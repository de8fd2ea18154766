package mockapi

import (
	"sync"
	"time"
)

// rateLimiter is a sliding-window request counter keyed by endpoint and
// client. Windows slide: once a request falls out of the window it no longer
// counts against the limit.
type rateLimiter struct {
	mu      sync.Mutex
	history map[string][]time.Time
	now     func() time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		history: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records a request for endpoint+client and reports whether it fits
// within maxRequests per window.
func (rl *rateLimiter) Allow(endpoint, client string, maxRequests int, window time.Duration) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	key := endpoint + ":" + client

	// Prune requests that have left the window.
	kept := rl.history[key][:0]
	for _, t := range rl.history[key] {
		if now.Sub(t) < window {
			kept = append(kept, t)
		}
	}
	rl.history[key] = kept

	if len(kept) >= maxRequests {
		return false
	}

	rl.history[key] = append(kept, now)
	return true
}
