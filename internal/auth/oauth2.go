package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2Refresher fetches a new access token with the client credentials
// grant on every refresh.
type OAuth2Refresher struct {
	config     clientcredentials.Config
	httpClient *http.Client
}

func NewOAuth2Refresher(cfg Config) (*OAuth2Refresher, error) {
	if cfg.TokenURL == "" {
		return nil, errors.New("oauth2 refresh requires token_url")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("oauth2 refresh requires client_id")
	}
	return &OAuth2Refresher{config: clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}}, nil
}

// WithHTTPClient sets the client used to reach the token endpoint.
func (r *OAuth2Refresher) WithHTTPClient(c *http.Client) *OAuth2Refresher {
	r.httpClient = c
	return r
}

func (r *OAuth2Refresher) Refresh(ctx context.Context, _ string) (http.Header, error) {
	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}
	token, err := r.config.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch oauth2 token: %w", err)
	}
	h := http.Header{}
	h.Set("Authorization", token.Type()+" "+token.AccessToken)
	return h, nil
}
