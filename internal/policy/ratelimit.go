package policy

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimit delays requests so they do not exceed a steady rate.
type RateLimit struct {
	limiter *rate.Limiter
}

// NewRateLimit allows rps requests per second with the given burst. A
// non-positive burst defaults to 1.
func NewRateLimit(rps float64, burst int) *RateLimit {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &RateLimit{limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimit) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return r.ExecuteContext(context.Background(), fn)
}

func (r *RateLimit) ExecuteContext(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return fn()
}
