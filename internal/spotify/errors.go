package spotify

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrArtistNotFound is returned when an artist search has no results.
	ErrArtistNotFound = errors.New("artist not found")

	// ErrNoToken is returned when the token endpoint answers without an access token.
	ErrNoToken = errors.New("token response missing access_token")
)

// AuthError is returned when the token endpoint rejects the client credentials.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("token request failed with status %d: %s", e.StatusCode, e.Body)
}

// UpstreamError is returned when a catalog API call fails or answers with an
// unexpected payload.
type UpstreamError struct {
	Endpoint   string
	StatusCode int           // 0 when no response was received
	Body       string        // truncated response body
	RetryAfter time.Duration // from the Retry-After header, if any
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Endpoint, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the failure is worth retrying:
// rate limiting, server errors and transport timeouts.
func (e *UpstreamError) Temporary() bool {
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 {
		return true
	}
	if e.StatusCode != 0 {
		return false
	}
	var te interface{ Timeout() bool }
	return errors.As(e.Err, &te) && te.Timeout()
}
