// Package auth provides credential refreshers. The orchestrator calls a
// refresher once when an endpoint answers 401 and retries with the headers it
// returns.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Refresher obtains fresh request headers after url rejected the current
// credentials.
type Refresher interface {
	Refresh(ctx context.Context, url string) (http.Header, error)
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(ctx context.Context, url string) (http.Header, error)

func (f RefreshFunc) Refresh(ctx context.Context, url string) (http.Header, error) {
	return f(ctx, url)
}

// Kind names a configurable refresher.
type Kind string

const (
	KindOAuth2 Kind = "oauth2"
	KindJWT    Kind = "jwt"
	KindStatic Kind = "static"
)

// Config selects and configures a refresher.
type Config struct {
	Type Kind `mapstructure:"type"`

	// OAuth2 client credentials.
	TokenURL     string   `mapstructure:"token_url"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	Scopes       []string `mapstructure:"scopes"`

	// Signed JWT.
	KeyFile   string        `mapstructure:"key_file"`
	Secret    string        `mapstructure:"secret"`
	Algorithm string        `mapstructure:"algorithm"`
	Issuer    string        `mapstructure:"issuer"`
	Audience  []string      `mapstructure:"audience"`
	Subject   string        `mapstructure:"subject"`
	KeyID     string        `mapstructure:"kid"`
	TTL       time.Duration `mapstructure:"ttl"`

	// Static headers.
	Headers map[string]string `mapstructure:"headers"`
}

// New builds the refresher described by cfg. An empty type returns nil.
func New(cfg Config) (Refresher, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case KindOAuth2:
		r, err := NewOAuth2Refresher(cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	case KindJWT:
		r, err := NewJWTRefresher(cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	case KindStatic:
		return NewStaticRefresher(cfg.Headers), nil
	default:
		return nil, fmt.Errorf("unknown refresh type %q (valid: %s, %s, %s)", cfg.Type, KindOAuth2, KindJWT, KindStatic)
	}
}

// StaticRefresher always returns the same headers.
type StaticRefresher struct {
	headers http.Header
}

func NewStaticRefresher(headers map[string]string) *StaticRefresher {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &StaticRefresher{headers: h}
}

func (s *StaticRefresher) Refresh(context.Context, string) (http.Header, error) {
	return s.headers.Clone(), nil
}

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
