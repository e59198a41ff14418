package config

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"restql/internal/auth"
	"restql/internal/policy"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.API.validate(result)
	c.Pagination.validate(result)

	if c.Policy.Type != "" {
		validatePolicy(result, "policy", c.Policy)
	}
	for _, entity := range sortedKeys(c.Policies) {
		validatePolicy(result, "policies."+entity, c.Policies[entity])
	}

	c.Auth.validate(result)

	for i, a := range c.Addons {
		a.validate(result, fmt.Sprintf("addons[%d]", i))
	}

	c.Server.validate(result)
	c.Observability.validate(result)

	return result
}

func (a *APIConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(a.URL) == "" {
		result.addError("api.url", "API URL is required", "set api.url or RESTQL_API_URL")
	} else if !validHTTPURL(a.URL) {
		result.addError("api.url", fmt.Sprintf("invalid API URL %q", a.URL), "use an absolute http:// or https:// URL")
	}

	if a.Timeout < 0 {
		result.addError("api.timeout", "timeout cannot be negative", "")
	}

	for _, entity := range sortedKeys(a.Path) {
		if u := a.Path[entity].URL; u != "" && !validHTTPURL(u) {
			result.addError("api.path."+entity+".url", fmt.Sprintf("invalid URL %q", u), "use an absolute http:// or https:// URL")
		}
	}

	for _, entity := range sortedKeys(a.PathMap) {
		route := a.PathMap[entity]
		if strings.TrimSpace(route) == "" {
			result.addError("api.path_map."+entity, "nested route cannot be empty", "")
			continue
		}
		if !strings.Contains(route, "{") {
			result.addWarning("api.path_map."+entity, "nested route has no placeholders",
				"use {entity.field} placeholders filled from the WHERE clause")
		}
	}
}

func (p *PaginationConfig) validate(result *ValidationResult) {
	switch p.Store {
	case "", "memory":
		if p.RedisURL != "" {
			result.addWarning("pagination.redis_url", "redis_url is set but the memory store is selected",
				"set pagination.store=redis to use it")
		}
	case "redis":
		if p.RedisURL == "" {
			result.addError("pagination.redis_url", "redis_url is required when pagination.store is redis", "")
		}
		if !p.Enabled() {
			result.addWarning("pagination.store", "redis store configured but pagination is disabled",
				"set pagination.param, response_path or response_header")
		}
	default:
		result.addError("pagination.store", fmt.Sprintf("invalid pagination store %q", p.Store), "valid values are: memory, redis")
	}

	if p.RedisTTL < 0 {
		result.addError("pagination.redis_ttl", "redis_ttl cannot be negative", "")
	}
}

func validatePolicy(result *ValidationResult, field string, cfg policy.Config) {
	switch cfg.Type {
	case policy.KindCircuitBreaker:
		if cfg.Timeout < 0 || cfg.Interval < 0 {
			result.addError(field, "circuit breaker intervals cannot be negative", "")
		}
	case policy.KindRetry:
		if cfg.InitialInterval < 0 || cfg.MaxInterval < 0 || cfg.MaxElapsed < 0 {
			result.addError(field, "retry intervals cannot be negative", "")
		}
		if cfg.MaxInterval > 0 && cfg.InitialInterval > cfg.MaxInterval {
			result.addWarning(field+".initial_interval", "initial_interval exceeds max_interval",
				"the backoff will start at max_interval")
		}
	case policy.KindRateLimit:
		if cfg.RPS <= 0 {
			result.addError(field+".rps", "rps must be greater than 0 for a rate_limit policy", "")
		}
		if cfg.Burst < 0 {
			result.addError(field+".burst", "burst cannot be negative", "")
		}
	default:
		result.addError(field+".type", fmt.Sprintf("invalid policy type %q", cfg.Type),
			fmt.Sprintf("valid values are: %s, %s, %s", policy.KindCircuitBreaker, policy.KindRetry, policy.KindRateLimit))
	}
}

func (a *AuthConfig) validate(result *ValidationResult) {
	r := a.Refresh
	switch r.Type {
	case "":
		if a.ClientSecretFile != "" || a.SecretFile != "" {
			result.addWarning("auth.refresh.type", "secret files are set but no refresh type is configured", "")
		}
	case auth.KindOAuth2:
		if r.TokenURL == "" {
			result.addError("auth.refresh.token_url", "token_url is required for oauth2 refresh", "")
		} else if !validHTTPURL(r.TokenURL) {
			result.addError("auth.refresh.token_url", fmt.Sprintf("invalid token URL %q", r.TokenURL), "")
		}
		if r.ClientID == "" {
			result.addError("auth.refresh.client_id", "client_id is required for oauth2 refresh", "")
		}
	case auth.KindJWT:
		if r.KeyFile == "" && r.Secret == "" {
			result.addError("auth.refresh", "jwt refresh needs key_file or secret",
				"set auth.refresh.key_file for RS256 or auth.secret_file for HS256")
		}
		if r.KeyFile != "" && r.Secret != "" {
			result.addWarning("auth.refresh.secret", "both key_file and secret are set", "key_file takes precedence")
		}
		if r.TTL <= 0 {
			result.addError("auth.refresh.ttl", "ttl must be greater than 0 for jwt refresh", "")
		}
	case auth.KindStatic:
		if len(r.Headers) == 0 {
			result.addError("auth.refresh.headers", "static refresh needs at least one header", "")
		}
	default:
		result.addError("auth.refresh.type", fmt.Sprintf("invalid refresh type %q", r.Type),
			fmt.Sprintf("valid values are: %s, %s, %s", auth.KindOAuth2, auth.KindJWT, auth.KindStatic))
	}
}

func (a *AddonConfig) validate(result *ValidationResult, field string) {
	if a.Type != "tag" {
		result.addError(field+".type", fmt.Sprintf("invalid addon type %q", a.Type), "valid values are: tag")
		return
	}
	if strings.TrimSpace(a.Keyword) == "" {
		result.addError(field+".keyword", "tag addon needs a keyword", "")
	}
	if strings.TrimSpace(a.Property) == "" {
		result.addError(field+".property", "tag addon needs a property", "")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.addError("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}
	if s.MaxBodyBytes <= 0 {
		result.addError("server.max_body_bytes", "max_body_bytes must be greater than 0", "")
	}
	if s.QueryTimeout < 0 {
		result.addError("server.query_timeout", "query_timeout cannot be negative", "")
	}

	// Rate limit validation
	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.addError("server.rate_limit_rps", "rate_limit_rps must be greater than 0 when rate limiting is enabled", "")
		}
		if s.RateLimitBurst <= 0 {
			result.addError("server.rate_limit_burst", "rate_limit_burst must be greater than 0 when rate limiting is enabled", "")
		}
	}
	if !s.RateLimitEnabled && (s.RateLimitRPS > 0 || s.RateLimitBurst > 0) {
		result.addWarning("server.rate_limit_enabled", "rate limit values are set but rate limiting is disabled",
			"enable server.rate_limit_enabled to apply rate limits")
	}

	// CORS validation
	if s.CORSEnabled {
		if len(s.CORSAllowedOrigins) == 0 {
			result.addError("server.cors_allowed_origins", "CORS enabled but no allowed origins configured",
				"set cors_allowed_origins or disable CORS")
		}

		hasWildcard := false
		for _, origin := range s.CORSAllowedOrigins {
			if strings.TrimSpace(origin) == "*" {
				hasWildcard = true
				break
			}
		}
		if hasWildcard && s.CORSAllowCredentials {
			result.addError("server.cors_allowed_origins", "wildcard origin (*) cannot be used with credentials",
				"use specific origins with credentials, or wildcard without credentials")
		}
		if hasWildcard {
			result.addWarning("server.cors_allowed_origins", "CORS wildcard origin enabled",
				"use specific origins in production for better security")
		}
	}

	if s.Auth.OIDCEnabled {
		if s.Auth.OIDCIssuerURL == "" {
			result.addError("server.auth.oidc_issuer_url", "issuer URL is required when OIDC is enabled", "")
		} else if u, err := url.Parse(s.Auth.OIDCIssuerURL); err != nil || u.Scheme != "https" {
			result.addError("server.auth.oidc_issuer_url", "issuer URL must be an https URL", "")
		}
		if s.Auth.OIDCAudience == "" {
			result.addError("server.auth.oidc_audience", "audience is required when OIDC is enabled", "")
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.addError("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level),
			"valid values are: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.addError("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"valid values are: json, text")
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio", "trace_sample_ratio must be between 0 and 1", "")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
	if o.Metrics != nil {
		o.Metrics.validate("observability.metrics", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.addError(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			"valid values are: grpc, http/protobuf")
	}

	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.addError(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
			"use host:port or a full URL")
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.addError(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			"valid values are: none, gzip")
	}

	if o.RetryMaxAttempts < 0 {
		result.addError(prefix+".retry_max_attempts", "retry_max_attempts cannot be negative", "")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
