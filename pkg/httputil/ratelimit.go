package httputil

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces outbound requests so their rate never exceeds the
// configured requests-per-minute budget. Wait blocks the caller until the
// next request is allowed.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter from a requests-per-minute budget.
// A budget of zero or less disables limiting.
func NewRateLimiter(maxRequestsPerMinute int) *RateLimiter {
	if maxRequestsPerMinute <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(maxRequestsPerMinute)/60.0), 1),
	}
}

// Wait blocks until a request is allowed or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
