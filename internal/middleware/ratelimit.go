package middleware

import (
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"restql/internal/observability"
)

// RateLimitConfig configures a global token bucket limiter.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// RateLimitMiddleware rejects requests with 429 once the shared token
// bucket is empty. metrics may be nil.
func RateLimitMiddleware(cfg RateLimitConfig, metrics *observability.SecurityMetrics) func(http.Handler) http.Handler {
	if !cfg.Enabled || cfg.RPS <= 0 || cfg.Burst <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
	retryAfter := strconv.Itoa(retryAfterSeconds(cfg.RPS))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				metrics.RecordRateLimited(r.Context(), r.URL.Path)
				w.Header().Set("Retry-After", retryAfter)
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds is the time until one token is available, rounded up.
func retryAfterSeconds(rps float64) int {
	secs := int(1 / rps)
	if float64(secs) < 1/rps {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}
