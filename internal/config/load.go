// Package config loads configuration from files, env vars, and flags, and validates it.
package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment variable, e.g. RESTQL_API_URL.
const EnvPrefix = "RESTQL"

// stdinSource marks a file setting that reads from standard input.
const stdinSource = "@-"

// Load loads configuration from multiple sources with the following precedence:
// 1. Explicit overrides (v.Set) – used only for secret files and prompts
// 2. Command line flags changed on fs
// 3. Environment variables
// 4. Config file
// 5. Default values
//
// fs should carry the flags registered by DefineFlags and already be
// parsed. A nil fs skips flags entirely.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Defaults (lowest priority)
	setDefaults(v)

	// --- Config file ---
	var cfgPath string
	if fs != nil && fs.Lookup("config") != nil {
		cfgPath, _ = fs.GetString("config")
	}
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("restql")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/restql/")
		v.AddConfigPath("$HOME/.restql")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return load(v, fs)
}

// load finishes loading once defaults and the config file are in v.
func load(v *viper.Viper, fs *pflag.FlagSet) (*Config, error) {
	// --- Environment variables ---
	// Canonical keys: dot + snake_case
	// Env vars: RESTQL_PAGINATION_REDIS_URL
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// --- Flags binding (highest normal priority) ---
	if fs != nil {
		bindChangedFlags(v, fs)
	}

	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}

	// --- Secrets from files (explicit override) ---
	if v.GetString("auth.refresh.client_secret") == "" && v.GetString("auth.client_secret_file") != "" {
		secret, err := readSecretFile(v.GetString("auth.client_secret_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read client secret file: %w", err)
		}
		v.Set("auth.refresh.client_secret", secret)
	}
	if v.GetString("auth.refresh.client_secret") == "" && v.GetBool("auth.client_secret_prompt") {
		secret, err := promptSecret("Enter client secret: ")
		if err != nil {
			return nil, fmt.Errorf("failed to read client secret: %w", err)
		}
		v.Set("auth.refresh.client_secret", secret)
	}
	if v.GetString("auth.refresh.secret") == "" && v.GetString("auth.secret_file") != "" {
		secret, err := readSecretFile(v.GetString("auth.secret_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read signing secret file: %w", err)
		}
		if secret == "" {
			return nil, fmt.Errorf("signing secret file %q is empty", v.GetString("auth.secret_file"))
		}
		v.Set("auth.refresh.secret", secret)
	}

	// --- Unmarshal (strict) ---
	var cfg Config
	if err := v.UnmarshalExact(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			stringToStringSliceHookFunc(","),
		),
	)
}

// bindChangedFlags copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" || !strings.Contains(f.Name, ".") {
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := fs.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := fs.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := fs.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := fs.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := fs.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := fs.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// DefineFlags registers the configuration flags on fs using canonical
// snake_case keys.
func DefineFlags(fs *pflag.FlagSet) {
	// API flags
	fs.String("api.url", "", "Base URL of the REST API")
	fs.Bool("api.debug", false, "Log every upstream request and response")
	fs.Bool("api.can_cancel", false, "Allow in-flight requests to be cancelled")
	fs.Duration("api.timeout", 0, "Upstream request timeout")
	fs.String("api.data_path", "", "Dotted path to the payload inside each response")

	// Pagination flags
	fs.String("pagination.param", "", "Query parameter carrying the page token")
	fs.String("pagination.response_path", "", "Dotted path to the next page token in response bodies")
	fs.String("pagination.response_header", "", "Response header carrying the next page token")
	fs.String("pagination.store", "", "Pagination state store (memory, redis)")
	fs.String("pagination.redis_url", "", "Redis URL for the redis pagination store")
	fs.String("pagination.redis_prefix", "", "Key prefix for the redis pagination store")
	fs.Duration("pagination.redis_ttl", 0, "Expiry of pagination state in redis (0 keeps it)")

	// Policy flags
	fs.String("policy.type", "", "Global request policy (circuit_breaker, retry, rate_limit)")

	// Auth flags
	fs.String("auth.refresh.type", "", "Credential refresh on 401 (oauth2, jwt, static)")
	fs.String("auth.refresh.token_url", "", "OAuth2 token endpoint")
	fs.String("auth.refresh.client_id", "", "OAuth2 client ID")
	fs.String("auth.client_secret_file", "", "Path to file containing the OAuth2 client secret (use @- for stdin)")
	fs.Bool("auth.client_secret_prompt", false, "Prompt for the OAuth2 client secret securely")
	fs.String("auth.refresh.key_file", "", "PEM private key used to sign JWTs")
	fs.String("auth.secret_file", "", "Path to file containing the JWT HMAC secret (use @- for stdin)")

	// Server flags
	fs.Int("server.port", 0, "HTTP server port")
	fs.Duration("server.query_timeout", 0, "Per-query timeout on the gateway")
	fs.Bool("server.auth.oidc_enabled", false, "Enable OIDC/JWKS authentication middleware")
	fs.String("server.auth.oidc_issuer_url", "", "OIDC issuer URL (for discovery and JWKS)")
	fs.String("server.auth.oidc_audience", "", "Expected JWT audience (client ID)")
	fs.Duration("server.auth.oidc_clock_skew", 0, "Allowed JWT clock skew (e.g. 2m)")
	fs.String("server.auth.oidc_ca_file", "", "PEM CA bundle used to reach the OIDC issuer")
	fs.Bool("server.rate_limit_enabled", false, "Enable global rate limiting for all HTTP endpoints")
	fs.Float64("server.rate_limit_rps", 0, "Global rate limit requests per second")
	fs.Int("server.rate_limit_burst", 0, "Global rate limit burst size")
	fs.Bool("server.cors_enabled", false, "Enable CORS (Cross-Origin Resource Sharing)")
	fs.StringSlice("server.cors_allowed_origins", nil, "Allowed CORS origins (comma-separated or repeated)")
	fs.Duration("server.read_timeout", 0, "HTTP server read timeout")
	fs.Duration("server.write_timeout", 0, "HTTP server write timeout")
	fs.Duration("server.shutdown_timeout", 0, "HTTP server graceful shutdown timeout")

	// Observability flags
	fs.String("observability.service_name", "", "Service name for observability")
	fs.String("observability.environment", "", "Environment name (dev, staging, prod)")
	fs.Bool("observability.metrics_enabled", false, "Enable metrics collection")
	fs.Bool("observability.tracing_enabled", false, "Enable distributed tracing")
	fs.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
	fs.String("observability.logging.format", "", "Log format (json, text)")
	fs.Bool("observability.logging.exports_enabled", false, "Enable OTLP log export")
	fs.String("observability.otlp.endpoint", "", "OTLP endpoint for all signals (e.g., localhost:4317)")
	fs.String("observability.otlp.protocol", "", "OTLP protocol for all signals (grpc, http/protobuf)")
	fs.Bool("observability.otlp.insecure", false, "Use insecure connection (no TLS)")

	// Config file flag
	fs.StringP("config", "c", "", "Config file path")
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.url", "")
	v.SetDefault("api.headers", map[string]string{})
	v.SetDefault("api.debug", false)
	v.SetDefault("api.can_cancel", false)
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.data_path", "")
	v.SetDefault("api.path", map[string]any{})
	v.SetDefault("api.path_map", map[string]string{})

	// Pagination defaults
	v.SetDefault("pagination.param", "")
	v.SetDefault("pagination.response_path", "")
	v.SetDefault("pagination.response_header", "")
	v.SetDefault("pagination.store", "memory")
	v.SetDefault("pagination.redis_url", "")
	v.SetDefault("pagination.redis_prefix", "restql:cursor:")
	v.SetDefault("pagination.redis_ttl", 0)

	// Policy defaults (disabled)
	v.SetDefault("policy.type", "")
	v.SetDefault("policy.max_requests", 1)
	v.SetDefault("policy.interval", 0)
	v.SetDefault("policy.timeout", 30*time.Second)
	v.SetDefault("policy.consecutive_failures", 5)
	v.SetDefault("policy.max_attempts", 3)
	v.SetDefault("policy.initial_interval", 100*time.Millisecond)
	v.SetDefault("policy.max_interval", 5*time.Second)
	v.SetDefault("policy.max_elapsed", 0)
	v.SetDefault("policy.rps", 0.0)
	v.SetDefault("policy.burst", 0)
	v.SetDefault("policies", map[string]any{})

	// Auth defaults (no refresh)
	v.SetDefault("auth.refresh.type", "")
	v.SetDefault("auth.refresh.token_url", "")
	v.SetDefault("auth.refresh.client_id", "")
	v.SetDefault("auth.refresh.client_secret", "")
	v.SetDefault("auth.refresh.scopes", []string{})
	v.SetDefault("auth.refresh.key_file", "")
	v.SetDefault("auth.refresh.secret", "")
	v.SetDefault("auth.refresh.algorithm", "")
	v.SetDefault("auth.refresh.issuer", "")
	v.SetDefault("auth.refresh.audience", []string{})
	v.SetDefault("auth.refresh.subject", "")
	v.SetDefault("auth.refresh.kid", "")
	v.SetDefault("auth.refresh.ttl", 5*time.Minute)
	v.SetDefault("auth.refresh.headers", map[string]string{})
	v.SetDefault("auth.client_secret_file", "")
	v.SetDefault("auth.client_secret_prompt", false)
	v.SetDefault("auth.secret_file", "")

	v.SetDefault("addons", []any{})

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.query_timeout", 30*time.Second)
	v.SetDefault("server.auth.oidc_enabled", false)
	v.SetDefault("server.auth.oidc_issuer_url", "")
	v.SetDefault("server.auth.oidc_audience", "")
	v.SetDefault("server.auth.oidc_clock_skew", 2*time.Minute)
	v.SetDefault("server.auth.oidc_ca_file", "")
	v.SetDefault("server.rate_limit_enabled", false)
	v.SetDefault("server.rate_limit_rps", 0.0)
	v.SetDefault("server.rate_limit_burst", 0)
	v.SetDefault("server.cors_enabled", false)
	v.SetDefault("server.cors_allowed_origins", []string{})
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Content-Type", "Authorization"})
	v.SetDefault("server.cors_expose_headers", []string{})
	v.SetDefault("server.cors_allow_credentials", false)
	v.SetDefault("server.cors_max_age", 86400)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Observability defaults
	v.SetDefault("observability.service_name", "restql")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)

	// Logging defaults (under observability)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.exports_enabled", false)

	// Global OTLP defaults
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.headers", map[string]string{})
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
	v.SetDefault("observability.otlp.retry_max_attempts", 3)
}

// promptSecret reads a secret from the terminal without echoing it.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

func readSecretFile(path string) (string, error) {
	var data []byte
	var err error

	if strings.TrimSpace(path) == stdinSource {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func validateSingleStdinFileSource(v *viper.Viper) error {
	stdinBackedKeys := []string{
		"auth.client_secret_file",
		"auth.secret_file",
	}

	var configured []string
	for _, key := range stdinBackedKeys {
		if strings.TrimSpace(v.GetString(key)) == stdinSource {
			configured = append(configured, key)
		}
	}

	if len(configured) > 1 {
		return fmt.Errorf(
			"multiple stdin-backed file settings use @- (%s); only one @- source is allowed",
			strings.Join(configured, ", "),
		)
	}
	return nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
