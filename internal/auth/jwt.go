package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTRefresher mints a short-lived signed bearer token on every refresh.
type JWTRefresher struct {
	method   jwt.SigningMethod
	key      any
	issuer   string
	audience []string
	subject  string
	kid      string
	ttl      time.Duration
	now      func() time.Time
}

// NewJWTRefresher signs with RS256 using KeyFile, or HS256 using Secret.
func NewJWTRefresher(cfg Config) (*JWTRefresher, error) {
	r := &JWTRefresher{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		subject:  cfg.Subject,
		kid:      cfg.KeyID,
		ttl:      cfg.TTL,
		now:      time.Now,
	}
	if r.ttl <= 0 {
		r.ttl = time.Hour
	}

	switch {
	case cfg.KeyFile != "":
		key, err := loadPrivateKey(cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		r.method, r.key = jwt.SigningMethodRS256, key
	case cfg.Secret != "":
		r.method, r.key = jwt.SigningMethodHS256, []byte(cfg.Secret)
	default:
		return nil, errors.New("jwt refresh requires key_file or secret")
	}
	if cfg.Algorithm != "" && cfg.Algorithm != r.method.Alg() {
		return nil, fmt.Errorf("jwt algorithm %s does not match the configured key (%s)", cfg.Algorithm, r.method.Alg())
	}
	return r, nil
}

func (r *JWTRefresher) Refresh(context.Context, string) (http.Header, error) {
	signed, err := r.Mint()
	if err != nil {
		return nil, err
	}
	return bearer(signed), nil
}

// Mint returns a freshly signed token.
func (r *JWTRefresher) Mint() (string, error) {
	now := r.now()
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(r.ttl).Unix(),
		"nbf": now.Add(-1 * time.Minute).Unix(),
	}
	if r.issuer != "" {
		claims["iss"] = r.issuer
	}
	if r.subject != "" {
		claims["sub"] = r.subject
	}
	if len(r.audience) > 0 {
		claims["aud"] = r.audience
	}

	token := jwt.NewWithClaims(r.method, claims)
	if r.kid != "" {
		token.Header["kid"] = r.kid
	}
	signed, err := token.SignedString(r.key)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key pem")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type")
	}
	return rsaKey, nil
}
