// Package policy wraps request execution with resilience behavior: circuit
// breaking, retry with backoff and client-side rate limiting.
package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// Policy wraps the execution of a request. A *gobreaker.CircuitBreaker
// satisfies it directly.
type Policy interface {
	Execute(fn func() (interface{}, error)) (interface{}, error)
}

// ContextPolicy is implemented by policies that can stop waiting when the
// request context ends.
type ContextPolicy interface {
	Policy
	ExecuteContext(ctx context.Context, fn func() (interface{}, error)) (interface{}, error)
}

// Run executes fn under p, passing ctx through when p accepts one. A nil
// policy runs fn directly.
func Run(ctx context.Context, p Policy, fn func() (interface{}, error)) (interface{}, error) {
	if p == nil {
		return fn()
	}
	if cp, ok := p.(ContextPolicy); ok {
		return cp.ExecuteContext(ctx, fn)
	}
	return p.Execute(fn)
}

// Chain applies policies outermost first.
type Chain []Policy

func (c Chain) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return c.ExecuteContext(context.Background(), fn)
}

func (c Chain) ExecuteContext(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	wrapped := fn
	for i := len(c) - 1; i >= 0; i-- {
		p, next := c[i], wrapped
		wrapped = func() (interface{}, error) { return Run(ctx, p, next) }
	}
	return wrapped()
}

// Kind names a configurable policy type.
type Kind string

const (
	KindCircuitBreaker Kind = "circuit_breaker"
	KindRetry          Kind = "retry"
	KindRateLimit      Kind = "rate_limit"
)

// Config describes one policy. Only the fields of the selected Kind apply.
type Config struct {
	Type Kind `mapstructure:"type"`

	// Circuit breaker.
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`

	// Retry.
	MaxAttempts     uint          `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxElapsed      time.Duration `mapstructure:"max_elapsed"`

	// Rate limit.
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// New builds the policy described by cfg. name labels circuit breakers.
func New(name string, cfg Config) (Policy, error) {
	switch cfg.Type {
	case KindCircuitBreaker:
		return NewCircuitBreaker(name, cfg), nil
	case KindRetry:
		return NewRetry(cfg), nil
	case KindRateLimit:
		return NewRateLimit(cfg.RPS, cfg.Burst), nil
	default:
		return nil, fmt.Errorf("unknown policy type %q (valid: %s, %s, %s)", cfg.Type, KindCircuitBreaker, KindRetry, KindRateLimit)
	}
}

// NewCircuitBreaker trips after cfg.ConsecutiveFailures failures in a row
// (default 5) and half-opens after cfg.Timeout.
func NewCircuitBreaker(name string, cfg Config) *gobreaker.CircuitBreaker {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
}
