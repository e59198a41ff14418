package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restql/internal/auth"
	"restql/internal/policy"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "restql.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func loadWith(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	DefineFlags(fs)
	require.NoError(t, fs.Parse(args))
	return Load(fs)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
api:
  url: https://api.example.com
`)

	cfg, err := loadWith(t, "--config", path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.API.URL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, "memory", cfg.Pagination.Store)
	assert.Equal(t, "restql:cursor:", cfg.Pagination.RedisPrefix)
	assert.False(t, cfg.Pagination.Enabled())
	assert.Equal(t, policy.Kind(""), cfg.Policy.Type)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, "restql", cfg.Observability.ServiceName)
	assert.Equal(t, "info", cfg.Observability.Logging.Level)

	result := cfg.Validate()
	assert.False(t, result.HasErrors(), result.Error())
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, `
api:
  url: https://api.example.com
server:
  port: 9000
`)

	cfg, err := loadWith(t, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)

	t.Setenv("RESTQL_SERVER_PORT", "9100")
	cfg, err = loadWith(t, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)

	cfg, err = loadWith(t, "--config", path, "--server.port", "9200")
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Server.Port)
}

func TestLoad_EnvStringSlice(t *testing.T) {
	path := writeConfig(t, "api:\n  url: https://api.example.com\n")
	t.Setenv("RESTQL_SERVER_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := loadWith(t, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSAllowedOrigins)
}

func TestLoad_Sections(t *testing.T) {
	path := writeConfig(t, `
api:
  url: https://api.example.com/
  headers:
    X-Api-Key: secret
  can_cancel: true
  path:
    posts:
      url: https://posts.example.com
  path_map:
    posts: "users/{users.id}/posts"
pagination:
  param: cursor
  response_path: meta.next
  store: redis
  redis_url: redis://localhost:6379/0
  redis_ttl: 10m
policy:
  type: circuit_breaker
  consecutive_failures: 3
policies:
  users:
    type: retry
    max_attempts: 5
    initial_interval: 50ms
auth:
  refresh:
    type: jwt
    secret: hmac-secret
    issuer: restql
    audience: [api]
addons:
  - type: tag
    keyword: TRIVIAL
    property: trivial
`)

	cfg, err := loadWith(t, "--config", path)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.API.Headers["x-api-key"])
	assert.True(t, cfg.API.CanCancel)
	assert.Equal(t, "https://posts.example.com", cfg.API.Path["posts"].URL)
	assert.Equal(t, "users/{users.id}/posts", cfg.API.PathMap["posts"])

	assert.True(t, cfg.Pagination.Enabled())
	assert.Equal(t, "cursor", cfg.Pagination.Param)
	assert.Equal(t, "meta.next", cfg.Pagination.ResponsePath)
	assert.Equal(t, 10*time.Minute, cfg.Pagination.RedisTTL)

	assert.Equal(t, policy.KindCircuitBreaker, cfg.Policy.Type)
	assert.Equal(t, uint32(3), cfg.Policy.ConsecutiveFailures)
	require.Contains(t, cfg.Policies, "users")
	assert.Equal(t, policy.KindRetry, cfg.Policies["users"].Type)
	assert.Equal(t, uint(5), cfg.Policies["users"].MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Policies["users"].InitialInterval)

	assert.Equal(t, auth.KindJWT, cfg.Auth.Refresh.Type)
	assert.Equal(t, []string{"api"}, cfg.Auth.Refresh.Audience)
	assert.Equal(t, 5*time.Minute, cfg.Auth.Refresh.TTL)

	require.Len(t, cfg.Addons, 1)
	assert.Equal(t, AddonConfig{Type: "tag", Keyword: "TRIVIAL", Property: "trivial"}, cfg.Addons[0])

	result := cfg.Validate()
	assert.False(t, result.HasErrors(), result.Error())
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
api:
  url: https://api.example.com
  base_path: /v1
`)

	_, err := loadWith(t, "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_path")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := loadWith(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_ClientSecretFile(t *testing.T) {
	secretPath := filepath.Join(t.TempDir(), "client-secret")
	require.NoError(t, os.WriteFile(secretPath, []byte("  s3cret\n"), 0o600))

	path := writeConfig(t, `
api:
  url: https://api.example.com
auth:
  client_secret_file: `+secretPath+`
  refresh:
    type: oauth2
    token_url: https://auth.example.com/token
    client_id: restql
`)

	cfg, err := loadWith(t, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Auth.Refresh.ClientSecret)
}

func TestLoad_InlineSecretWinsOverFile(t *testing.T) {
	path := writeConfig(t, `
api:
  url: https://api.example.com
auth:
  secret_file: /does/not/exist
  refresh:
    type: jwt
    secret: inline
`)

	cfg, err := loadWith(t, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "inline", cfg.Auth.Refresh.Secret)
}

func TestLoad_NilFlagSet(t *testing.T) {
	t.Setenv("RESTQL_API_URL", "https://env.example.com")
	v := viper.New()
	setDefaults(v)

	cfg, err := load(v, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.API.URL)
}

func TestValidateSingleStdinFileSource(t *testing.T) {
	t.Run("one", func(t *testing.T) {
		v := viper.New()
		v.Set("auth.client_secret_file", "@-")
		v.Set("auth.secret_file", "/tmp/secret")
		assert.NoError(t, validateSingleStdinFileSource(v))
	})

	t.Run("multiple", func(t *testing.T) {
		v := viper.New()
		v.Set("auth.client_secret_file", "@-")
		v.Set("auth.secret_file", " @- ")

		err := validateSingleStdinFileSource(v)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "auth.client_secret_file") && strings.Contains(err.Error(), "auth.secret_file"))
	})
}
