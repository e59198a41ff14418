package config

import (
	"time"

	"restql/internal/auth"
	"restql/internal/policy"
)

// Config holds the application configuration.
type Config struct {
	API           APIConfig                `mapstructure:"api"`
	Pagination    PaginationConfig         `mapstructure:"pagination"`
	Policy        policy.Config            `mapstructure:"policy"`
	Policies      map[string]policy.Config `mapstructure:"policies"`
	Auth          AuthConfig               `mapstructure:"auth"`
	Addons        []AddonConfig            `mapstructure:"addons"`
	Server        ServerConfig             `mapstructure:"server"`
	Observability ObservabilityConfig      `mapstructure:"observability"`
}

// APIConfig describes the upstream REST API.
type APIConfig struct {
	URL       string            `mapstructure:"url"`
	Headers   map[string]string `mapstructure:"headers"`
	Debug     bool              `mapstructure:"debug"`
	CanCancel bool              `mapstructure:"can_cancel"`
	Timeout   time.Duration     `mapstructure:"timeout"`

	// DataPath is a dotted path into each response body that holds the
	// usable payload, e.g. "data" for {"data": [...]} envelopes.
	DataPath string `mapstructure:"data_path"`

	// Path holds per-entity host and header overrides. Viper lowercases
	// map keys, so entity names here match lowercase entities only.
	Path map[string]EntityConfig `mapstructure:"path"`

	// PathMap maps an entity to a nested route template such as
	// "users/{users.id}/posts".
	PathMap map[string]string `mapstructure:"path_map"`
}

// EntityConfig overrides the host and headers for one entity.
type EntityConfig struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

// PaginationConfig controls token continuation of GET requests.
type PaginationConfig struct {
	Param          string        `mapstructure:"param"`
	ResponsePath   string        `mapstructure:"response_path"`
	ResponseHeader string        `mapstructure:"response_header"`
	Store          string        `mapstructure:"store"` // memory, redis
	RedisURL       string        `mapstructure:"redis_url"`
	RedisPrefix    string        `mapstructure:"redis_prefix"`
	RedisTTL       time.Duration `mapstructure:"redis_ttl"`
}

// Enabled reports whether any token source is configured.
func (p PaginationConfig) Enabled() bool {
	return p.Param != "" || p.ResponsePath != "" || p.ResponseHeader != ""
}

// AuthConfig holds upstream credential refresh settings.
type AuthConfig struct {
	Refresh auth.Config `mapstructure:"refresh"`

	// Secret sources, read into Refresh when the inline value is empty.
	ClientSecretFile   string `mapstructure:"client_secret_file"`
	ClientSecretPrompt bool   `mapstructure:"client_secret_prompt"`
	SecretFile         string `mapstructure:"secret_file"`
}

// AddonConfig declares one addon. Addons are composed in list order, so
// the last one parses the query first.
type AddonConfig struct {
	Type     string `mapstructure:"type"` // tag
	Keyword  string `mapstructure:"keyword"`
	Property string `mapstructure:"property"`
}

// OIDCConfig controls bearer token verification on the gateway.
type OIDCConfig struct {
	OIDCEnabled   bool          `mapstructure:"oidc_enabled"`
	OIDCIssuerURL string        `mapstructure:"oidc_issuer_url"`
	OIDCAudience  string        `mapstructure:"oidc_audience"`
	OIDCClockSkew time.Duration `mapstructure:"oidc_clock_skew"`
	OIDCCAFile    string        `mapstructure:"oidc_ca_file"`
}

// ServerConfig holds HTTP gateway parameters.
type ServerConfig struct {
	Port                 int           `mapstructure:"port"`
	MaxBodyBytes         int64         `mapstructure:"max_body_bytes"`
	QueryTimeout         time.Duration `mapstructure:"query_timeout"`
	Auth                 OIDCConfig    `mapstructure:"auth"`
	RateLimitEnabled     bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRPS         float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst       int           `mapstructure:"rate_limit_burst"`
	CORSEnabled          bool          `mapstructure:"cors_enabled"`
	CORSAllowedOrigins   []string      `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods   []string      `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders   []string      `mapstructure:"cors_allowed_headers"`
	CORSExposeHeaders    []string      `mapstructure:"cors_expose_headers"`
	CORSAllowCredentials bool          `mapstructure:"cors_allow_credentials"`
	CORSMaxAge           int           `mapstructure:"cors_max_age"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName      string        `mapstructure:"service_name"`
	ServiceVersion   string        `mapstructure:"service_version"`
	Environment      string        `mapstructure:"environment"`
	MetricsEnabled   bool          `mapstructure:"metrics_enabled"`
	TracingEnabled   bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64       `mapstructure:"trace_sample_ratio"`
	Logging          LoggingConfig `mapstructure:"logging"`

	// Global OTLP settings (defaults for all signals)
	OTLP OTLPConfig `mapstructure:"otlp"`

	// Signal-specific overrides (optional)
	Traces  *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs    *OTLPConfig `mapstructure:"logs,omitempty"`
	Metrics *OTLPConfig `mapstructure:"metrics,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // "none", "gzip"
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
	RetryMaxAttempts  int               `mapstructure:"retry_max_attempts"`
}

// TracesConfig returns the effective OTLP config for traces.
func (c *ObservabilityConfig) TracesConfig() OTLPConfig {
	return c.signal(c.Traces)
}

// LogsConfig returns the effective OTLP config for logs.
func (c *ObservabilityConfig) LogsConfig() OTLPConfig {
	return c.signal(c.Logs)
}

// MetricsConfig returns the effective OTLP config for metrics.
func (c *ObservabilityConfig) MetricsConfig() OTLPConfig {
	return c.signal(c.Metrics)
}

func (c *ObservabilityConfig) signal(override *OTLPConfig) OTLPConfig {
	if override == nil {
		return c.OTLP
	}
	return mergeOTLP(c.OTLP, *override)
}

// mergeOTLP lays non-empty signal settings over the global ones. Insecure
// always comes from the override since false cannot be told from unset.
func mergeOTLP(base, override OTLPConfig) OTLPConfig {
	out := base
	out.Insecure = override.Insecure
	for dst, src := range map[*string]string{
		&out.Endpoint:          override.Endpoint,
		&out.Protocol:          override.Protocol,
		&out.TLSCertFile:       override.TLSCertFile,
		&out.TLSClientCertFile: override.TLSClientCertFile,
		&out.TLSClientKeyFile:  override.TLSClientKeyFile,
		&out.Compression:       override.Compression,
	} {
		if src != "" {
			*dst = src
		}
	}
	if override.Headers != nil {
		out.Headers = make(map[string]string, len(base.Headers)+len(override.Headers))
		for k, v := range base.Headers {
			out.Headers[k] = v
		}
		for k, v := range override.Headers {
			out.Headers[k] = v
		}
	}
	if override.Timeout != 0 {
		out.Timeout = override.Timeout
	}
	if override.RetryMaxAttempts != 0 {
		out.RetryEnabled = override.RetryEnabled
		out.RetryMaxAttempts = override.RetryMaxAttempts
	}
	return out
}
