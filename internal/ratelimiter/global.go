package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// GlobalLimiter throttles the server-wide connection accept rate using the
// token bucket algorithm.
//
// Unlike ClientLimiter, which gates individual clients at admission time,
// GlobalLimiter paces the accept loop itself. It exists as an optional knob
// for bounded deployments; the default configuration leaves it disabled so
// the accept loop runs unthrottled.
//
// Thread safety:
// All methods are safe for concurrent use.
type GlobalLimiter struct {
	limiter *rate.Limiter
}

// NewGlobalLimiter creates a GlobalLimiter allowing `acceptsPerSecond`
// sustained accepts with a burst of the same size.
//
// acceptsPerSecond = 0 disables throttling.
func NewGlobalLimiter(acceptsPerSecond uint) *GlobalLimiter {
	if acceptsPerSecond == 0 {
		return &GlobalLimiter{}
	}
	return &GlobalLimiter{
		limiter: rate.NewLimiter(rate.Limit(acceptsPerSecond), int(acceptsPerSecond)),
	}
}

// Enabled reports whether the throttle is active.
func (g *GlobalLimiter) Enabled() bool {
	return g.limiter != nil
}

// Wait blocks until an accept token is available or the context is
// cancelled. A disabled limiter returns immediately.
func (g *GlobalLimiter) Wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}

// Allow consumes an accept token without waiting. A disabled limiter
// always allows.
func (g *GlobalLimiter) Allow() bool {
	if g.limiter == nil {
		return true
	}
	return g.limiter.Allow()
}
