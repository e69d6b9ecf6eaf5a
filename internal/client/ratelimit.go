package client

import (
	"context"
	"fmt"
	"time"

	"nba_analytics/ingestion/internal/metrics"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket shared by every client calling the same provider.
// Waiters are served in reservation order.
type RateLimiter struct {
	provider string
	limiter  *rate.Limiter
}

// NewRateLimiter allows calls requests per period with a burst of calls
func NewRateLimiter(provider string, calls int, period time.Duration) *RateLimiter {
	if calls <= 0 || period <= 0 {
		return Unlimited(provider)
	}
	return &RateLimiter{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Every(period/time.Duration(calls)), calls),
	}
}

// Unlimited returns a limiter that never blocks
func Unlimited(provider string) *RateLimiter {
	return &RateLimiter{provider: provider, limiter: rate.NewLimiter(rate.Inf, 1)}
}

// Wait blocks until a token is available or ctx is done
func (l *RateLimiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", l.provider, err)
	}
	metrics.RecordRateLimitWait(l.provider, time.Since(start).Seconds())
	return nil
}

// Provider returns the provider this bucket belongs to
func (l *RateLimiter) Provider() string {
	return l.provider
}
