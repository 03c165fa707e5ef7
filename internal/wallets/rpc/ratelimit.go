package rpc

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter throttles calls per provider endpoint with a token bucket.
// Clients created for the same endpoint should share one limiter so that
// short-lived wallet instances do not each get a fresh burst.
type RateLimiter struct {
	limiters   map[string]*rate.Limiter
	mu         sync.RWMutex
	rateLimit  rate.Limit
	burstLimit int
}

// NewRateLimiter creates a limiter allowing ratePerSecond calls with the
// given burst. A non-positive rate disables limiting.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	limit := rate.Limit(ratePerSecond)
	if ratePerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		rateLimit:  limit,
		burstLimit: burst,
	}
}

// Allow reports whether a call to endpoint may proceed now.
func (r *RateLimiter) Allow(endpoint string) bool {
	return r.getLimiter(endpoint).Allow()
}

// Wait blocks until a call to endpoint is allowed or ctx ends.
func (r *RateLimiter) Wait(ctx context.Context, endpoint string) error {
	return r.getLimiter(endpoint).Wait(ctx)
}

func (r *RateLimiter) getLimiter(endpoint string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[endpoint]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter, exists = r.limiters[endpoint]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(r.rateLimit, r.burstLimit)
	r.limiters[endpoint] = limiter
	return limiter
}
