package common

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// minThrottledRPS is the floor Throttle will not reduce the limit below.
const minThrottledRPS = 0.1

// RateLimiter provides thread-safe rate limiting with dynamically adjustable
// limits. It keeps request rates against the report portal under control while
// allowing runtime adjustments when the portal signals it is being overwhelmed.
type RateLimiter struct {
	limiter *rate.Limiter
	rps     float64
	burst   int
	mu      sync.Mutex // Protects concurrent access to the limiter
}

// NewRateLimiter creates a RateLimiter with the specified requests per second
// (rps) and burst size. The burst parameter controls how many requests can be
// made at once to accommodate temporary spikes in traffic.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		rps:     rps,
		burst:   burst,
	}
}

// Wait blocks until the rate limiter allows an event or the context is
// canceled. It returns an error if the context is canceled while waiting.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	limiter := rl.limiter
	rl.mu.Unlock()
	return limiter.Wait(ctx)
}

// UpdateLimits dynamically adjusts the rate limiter's requests per second and
// burst size. This allows adapting to changing conditions like portal load or
// quota changes at runtime.
func (rl *RateLimiter) UpdateLimits(rps float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.rps = rps
	rl.burst = burst
	rl.limiter.SetLimit(rate.Limit(rps))
	rl.limiter.SetBurst(burst)
}

// Throttle halves the current request rate in response to a rate-limit
// signal from the portal, bounded below by minThrottledRPS.
func (rl *RateLimiter) Throttle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.rps = rl.rps / 2
	if rl.rps < minThrottledRPS {
		rl.rps = minThrottledRPS
	}
	rl.limiter.SetLimit(rate.Limit(rl.rps))
}

// Limit returns the currently configured requests per second.
func (rl *RateLimiter) Limit() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.rps
}
