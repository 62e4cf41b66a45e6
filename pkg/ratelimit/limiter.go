package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a request may proceed right now
	Allow() bool
	// Wait blocks until the rate limit allows another request or the
	// context is cancelled
	Wait(ctx context.Context) error
}

// tokenLimiter implements Limiter on top of golang.org/x/time/rate
type tokenLimiter struct {
	limiter *rate.Limiter
}

// PerMinute creates a limiter allowing the given number of requests per
// minute with the given burst size
func PerMinute(requests int, burst int) Limiter {
	if requests <= 0 {
		requests = 60
	}
	if burst <= 0 {
		burst = 1
	}
	return &tokenLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(requests)/60.0), burst),
	}
}

// NewPacer creates a limiter enforcing a fixed delay between successive
// events. The first event passes immediately.
func NewPacer(delay time.Duration) Limiter {
	if delay <= 0 {
		return noopLimiter{}
	}
	return &tokenLimiter{
		limiter: rate.NewLimiter(rate.Every(delay), 1),
	}
}

func (t *tokenLimiter) Allow() bool {
	return t.limiter.Allow()
}

func (t *tokenLimiter) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// noopLimiter never blocks. Used when pacing is disabled.
type noopLimiter struct{}

func (noopLimiter) Allow() bool                    { return true }
func (noopLimiter) Wait(ctx context.Context) error { return ctx.Err() }
