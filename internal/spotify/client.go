// Package spotify fetches artist catalog metadata from the Spotify Web API.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the Web API root; endpoint paths are appended to it.
	DefaultBaseURL = "https://api.spotify.com/v1/"

	// DefaultRequestTimeout bounds every catalog API call.
	DefaultRequestTimeout = 30 * time.Second

	userAgent = "spotify-catalog-etl/1.0"
)

// defaultRetryDelays is the backoff between attempts for rate-limited or
// failing requests.
var defaultRetryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Client is a per-run session against the catalog API.
// It holds the token-bearing HTTP client; nothing is shared between runs.
type Client struct {
	api         *spotify.Client
	httpClient  *http.Client
	baseURL     string
	retryDelays []time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		c.baseURL = u
	}
}

// WithRetryDelays sets the backoff schedule; its length is the retry count.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(c *Client) {
		c.retryDelays = delays
	}
}

// New creates a Client that issues requests with httpClient, which must
// already attach the bearer token.
func New(httpClient *http.Client, opts ...Option) *Client {
	c := &Client{
		httpClient:  httpClient,
		baseURL:     DefaultBaseURL,
		retryDelays: defaultRetryDelays,
	}
	for _, opt := range opts {
		opt(c)
	}
	// Search retries are bounded by Client.retry, not zmb3.
	c.api = spotify.New(httpClient, spotify.WithBaseURL(c.baseURL))
	return c
}

// NewSession fetches a token from provider and returns a Client authorized
// with it. The token is refreshed transparently if it expires mid-run.
// Token failures are returned before any catalog call is made.
func NewSession(ctx context.Context, provider *TokenProvider, timeout time.Duration, opts ...Option) (*Client, error) {
	token, err := provider.Token(ctx)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	httpClient := oauth2.NewClient(ctx, provider.TokenSource(ctx, token))
	httpClient.Timeout = timeout

	return New(httpClient, opts...), nil
}

// endpoint resolves a path relative to the API root.
func (c *Client) endpoint(format string, args ...any) string {
	return c.baseURL + fmt.Sprintf(format, args...)
}
