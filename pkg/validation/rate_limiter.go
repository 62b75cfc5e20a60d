package validation

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter gives every goal source its own token bucket holding
// maxRequests goals and refilled at maxRequests per window. Sources idle for
// two windows are forgotten.
type RateLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu        sync.Mutex
	sources   map[string]*sourceBucket
	lastSweep time.Time
}

type sourceBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing maxRequests per window and
// source. A non-positive maxRequests rejects everything.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		idle:    2 * window,
		sources: make(map[string]*sourceBucket),
	}
	if maxRequests > 0 && window > 0 {
		rl.limit = rate.Every(window / time.Duration(maxRequests))
		rl.burst = maxRequests
	}
	return rl
}

// Allow reports whether source may submit another goal now
func (rl *RateLimiter) Allow(source string) bool {
	return rl.allowAt(source, time.Now())
}

func (rl *RateLimiter) allowAt(source string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.sweep(now)
	b, ok := rl.sources[source]
	if !ok {
		b = &sourceBucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.sources[source] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// sweep drops idle sources, at most once per idle period. Callers hold mu.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.idle {
		return
	}
	for source, b := range rl.sources {
		if now.Sub(b.lastSeen) >= rl.idle {
			delete(rl.sources, source)
		}
	}
	rl.lastSweep = now
}

// Sources returns the number of sources currently tracked
func (rl *RateLimiter) Sources() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.sources)
}
