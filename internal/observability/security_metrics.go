package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SecurityMetrics counts gateway authentication outcomes and throttled
// requests. A nil *SecurityMetrics records nothing.
type SecurityMetrics struct {
	authAttempts          metric.Int64Counter
	authFailures          metric.Int64Counter
	authSuccesses         metric.Int64Counter
	tokenValidationErrors metric.Int64Counter
	rateLimited           metric.Int64Counter
}

// InitSecurityMetrics initializes security-specific metrics
func InitSecurityMetrics() (*SecurityMetrics, error) {
	return newSecurityMetrics(otel.Meter("restql/security"))
}

func newSecurityMetrics(meter metric.Meter) (*SecurityMetrics, error) {
	m := &SecurityMetrics{}
	for _, c := range []struct {
		dst         *metric.Int64Counter
		name        string
		description string
	}{
		{&m.authAttempts, "security.auth.attempts.total", "Total number of authentication attempts"},
		{&m.authFailures, "security.auth.failures.total", "Total number of authentication failures"},
		{&m.authSuccesses, "security.auth.successes.total", "Total number of successful authentications"},
		{&m.tokenValidationErrors, "security.token.validation_errors.total", "Total number of token validation errors"},
		{&m.rateLimited, "security.rate_limited.total", "Total number of requests rejected by the rate limiter"},
	} {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.description))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

// RecordAuthAttempt records an authentication attempt
func (m *SecurityMetrics) RecordAuthAttempt(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.authAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}

// RecordAuthFailure records a failed authentication attempt
func (m *SecurityMetrics) RecordAuthFailure(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.authFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	))
}

// RecordAuthSuccess records a successful authentication
func (m *SecurityMetrics) RecordAuthSuccess(ctx context.Context, endpoint, issuer string) {
	if m == nil {
		return
	}
	m.authSuccesses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("issuer", issuer),
	))
}

// RecordTokenValidationError records a token validation error
func (m *SecurityMetrics) RecordTokenValidationError(ctx context.Context, errorType string) {
	if m == nil {
		return
	}
	m.tokenValidationErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error_type", errorType),
	))
}

// RecordRateLimited records a request rejected with 429.
func (m *SecurityMetrics) RecordRateLimited(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}
