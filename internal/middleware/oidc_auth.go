package middleware

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"restql/internal/logging"
	"restql/internal/observability"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

// OIDCAuthConfig controls OIDC/JWKS validation behavior.
type OIDCAuthConfig struct {
	Enabled   bool
	IssuerURL string
	Audience  string
	ClockSkew time.Duration

	// CAFile is a PEM bundle trusted when talking to the issuer.
	CAFile string
}

type authContextKey struct{}

// AuthContext carries validated JWT claims.
type AuthContext struct {
	Subject  string
	Issuer   string
	Audience []string
	Claims   map[string]interface{}
}

// AuthFromContext returns the auth context from a request context.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(AuthContext)
	return auth, ok
}

// newOIDCHTTPClient builds the client used for discovery and JWKS fetches.
func newOIDCHTTPClient(cfg OIDCAuthConfig) (*http.Client, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CAFile != "" {
		pool, err := observability.LoadCertPool(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load oidc ca file: %w", err)
		}
		tlsConfig.RootCAs = pool
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	return &http.Client{Transport: transport, Timeout: 10 * time.Second}, nil
}

// OIDCAuthMiddleware validates Bearer tokens against the issuer's JWKS when
// enabled. Provider discovery happens once, at construction. metrics may be nil.
func OIDCAuthMiddleware(ctx context.Context, cfg OIDCAuthConfig, logger *logging.Logger, metrics *observability.SecurityMetrics) (func(http.Handler) http.Handler, error) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }, nil
	}

	if cfg.IssuerURL == "" || cfg.Audience == "" {
		return nil, errors.New("oidc auth enabled but issuer/audience not configured")
	}
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = 2 * time.Minute
	}

	issuerURL, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid oidc issuer url: %w", err)
	}
	if issuerURL.Scheme != "https" {
		return nil, errors.New("oidc issuer url must use https")
	}

	httpClient, err := newOIDCHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	// The key set keeps this context for later JWKS refreshes.
	providerCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, httpClient)

	provider, err := oidc.NewProvider(providerCtx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oidc provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.Audience})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			endpoint := r.URL.Path
			reqLogger := logging.FromContext(r.Context())
			metrics.RecordAuthAttempt(r.Context(), endpoint)

			reject := func(reason, message string, err error) {
				metrics.RecordAuthFailure(r.Context(), endpoint, reason)
				if err != nil {
					metrics.RecordTokenValidationError(r.Context(), reason)
				}
				if logger != nil {
					attrs := []any{
						slog.String("reason", reason),
						slog.String("endpoint", endpoint),
						slog.String("remote_addr", r.RemoteAddr),
					}
					if err != nil {
						attrs = append(attrs, slog.String("error", err.Error()))
					}
					reqLogger.Warn("authentication failed", attrs...)
				}
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeJSONError(w, http.StatusUnauthorized, message)
			}

			tokenString := bearerToken(r.Header.Get("Authorization"))
			if tokenString == "" {
				reject("missing_token", "missing bearer token", nil)
				return
			}

			idToken, err := verifier.Verify(r.Context(), tokenString)
			if err != nil {
				reject("verification_failed", "invalid token", err)
				return
			}

			claims := map[string]interface{}{}
			if err := idToken.Claims(&claims); err != nil {
				reject("claims_parse_failed", "invalid token claims", err)
				return
			}

			if err := validateTimeClaims(claims, cfg.ClockSkew, time.Now()); err != nil {
				reject("time_validation_failed", "invalid token", err)
				return
			}

			subject, _ := claims["sub"].(string)
			aud := extractAudience(claims)
			metrics.RecordAuthSuccess(r.Context(), endpoint, cfg.IssuerURL)

			if logger != nil {
				reqLogger.Debug("authentication successful",
					slog.String("subject", subject),
					slog.String("endpoint", endpoint),
				)
			}

			if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
				span.SetAttributes(
					attribute.String("auth.subject", subject),
					attribute.String("auth.issuer", cfg.IssuerURL),
					attribute.Bool("auth.authenticated", true),
				)
			}

			ctx := context.WithValue(r.Context(), authContextKey{}, AuthContext{
				Subject:  subject,
				Issuer:   cfg.IssuerURL,
				Audience: aud,
				Claims:   claims,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}

func bearerToken(value string) string {
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func validateTimeClaims(claims map[string]interface{}, skew time.Duration, now time.Time) error {
	if skew <= 0 {
		return nil
	}
	if exp, ok := numericDate(claims["exp"]); ok && now.After(exp.Add(skew)) {
		return errors.New("token expired")
	}
	if nbf, ok := numericDate(claims["nbf"]); ok && now.Add(skew).Before(nbf) {
		return errors.New("token not valid yet")
	}
	return nil
}

func numericDate(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	case int:
		return time.Unix(int64(v), 0), true
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(parsed, 0), true
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(parsed, 0), true
	default:
		return time.Time{}, false
	}
}

func extractAudience(claims map[string]interface{}) []string {
	switch val := claims["aud"].(type) {
	case string:
		return []string{val}
	case []string:
		return val
	case []interface{}:
		result := make([]string, 0, len(val))
		for _, item := range val {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	default:
		return nil
	}
}
