package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const defaultTokenTimeout = 30 * time.Second

// TokenProvider exchanges client credentials for bearer tokens using the
// client-credentials grant.
type TokenProvider struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
}

// AuthOption configures a TokenProvider.
type AuthOption func(*TokenProvider)

// WithTokenURL overrides the authorization endpoint.
func WithTokenURL(u string) AuthOption {
	return func(p *TokenProvider) {
		p.cfg.TokenURL = u
	}
}

// WithAuthHTTPClient sets the HTTP client used for token requests.
func WithAuthHTTPClient(c *http.Client) AuthOption {
	return func(p *TokenProvider) {
		p.httpClient = c
	}
}

// NewTokenProvider creates a TokenProvider for the given application credentials.
func NewTokenProvider(clientID, clientSecret string, opts ...AuthOption) *TokenProvider {
	p := &TokenProvider{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     spotifyauth.TokenURL,
			// Basic auth header built from base64(client_id:client_secret).
			AuthStyle: oauth2.AuthStyleInHeader,
		},
		httpClient: &http.Client{Timeout: defaultTokenTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Token requests a new bearer token. It does not retry.
// A non-success status from the endpoint is returned as *AuthError.
func (p *TokenProvider) Token(ctx context.Context) (*oauth2.Token, error) {
	token, err := p.cfg.Token(p.context(ctx))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, &AuthError{
				StatusCode: retrieveErr.Response.StatusCode,
				Body:       string(retrieveErr.Body),
			}
		}
		return nil, fmt.Errorf("requesting token: %w", err)
	}
	if token.AccessToken == "" {
		return nil, ErrNoToken
	}
	return token, nil
}

// TokenSource returns a source that serves initial until it expires and then
// requests a fresh token with the same credentials.
func (p *TokenProvider) TokenSource(ctx context.Context, initial *oauth2.Token) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(initial, p.cfg.TokenSource(p.context(ctx)))
}

func (p *TokenProvider) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}
