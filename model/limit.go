package model

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles inference calls of the wrapped model.
type RateLimited struct {
	next    Model
	limiter *rate.Limiter
}

// WithRateLimit wraps m so that at most rps calls per second (with the given
// burst) reach the provider. rps <= 0 returns m unchanged.
func WithRateLimit(m Model, rps float64, burst int) Model {
	if rps <= 0 {
		return m
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: m, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Infer waits for a token then delegates.
func (r *RateLimited) Infer(ctx context.Context, req Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.Infer(ctx, req)
}

// Info implements Model.
func (r *RateLimited) Info() Info { return r.next.Info() }
