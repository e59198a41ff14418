package policy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"restql/internal/transport"
)

// Retry re-runs a failed request with exponential backoff. Only transient
// failures are retried: transport errors, 429 and 5xx responses.
type Retry struct {
	maxAttempts uint
	maxElapsed  time.Duration
	newBackOff  func() backoff.BackOff
}

// NewRetry builds a retry policy. Zero fields fall back to 3 attempts
// starting at 100ms.
func NewRetry(cfg Config) *Retry {
	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = 3
	}
	initial := cfg.InitialInterval
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	maxInterval := cfg.MaxInterval
	if maxInterval <= 0 {
		maxInterval = 5 * time.Second
	}
	return &Retry{
		maxAttempts: attempts,
		maxElapsed:  cfg.MaxElapsed,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = maxInterval
			return b
		},
	}
}

func (r *Retry) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return r.ExecuteContext(context.Background(), fn)
}

func (r *Retry) ExecuteContext(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.maxAttempts),
	}
	if r.maxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(r.maxElapsed))
	}
	return backoff.Retry(ctx, func() (interface{}, error) {
		v, err := fn()
		if err != nil && !Transient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
}

// Transient reports whether err is worth retrying.
func Transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *transport.StatusError
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests || se.Status >= 500
	}
	return true
}
