package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/justestif/spotify-catalog-etl/internal/logger"
)

const (
	// albumPageSize is the largest page the albums endpoint serves.
	albumPageSize = 50

	includeGroups = "album,single,compilation"

	maxErrorBody = 512
)

// ArtistAlbums fetches one page of an artist's albums.
// An empty pageURL requests the first page; otherwise pageURL is a next
// cursor returned by a previous page and is followed as-is.
func (c *Client) ArtistAlbums(ctx context.Context, artistID, pageURL string) (*AlbumPage, error) {
	if pageURL == "" {
		params := url.Values{
			"include_groups": {includeGroups},
			"limit":          {strconv.Itoa(albumPageSize)},
		}
		pageURL = c.endpoint("artists/%s/albums?%s", url.PathEscape(artistID), params.Encode())
	}

	var page AlbumPage
	if err := c.getJSON(ctx, "artist albums", pageURL, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Album fetches an album's full detail, including its first page of tracks.
func (c *Client) Album(ctx context.Context, albumID string) (*Album, error) {
	var album Album
	if err := c.getJSON(ctx, "album", c.endpoint("albums/%s", url.PathEscape(albumID)), &album); err != nil {
		return nil, err
	}
	return &album, nil
}

// AlbumTracks follows an album's track listing cursor.
func (c *Client) AlbumTracks(ctx context.Context, pageURL string) (*TrackPage, error) {
	var page TrackPage
	if err := c.getJSON(ctx, "album tracks", pageURL, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Track fetches a track's full detail.
func (c *Client) Track(ctx context.Context, trackID string) (*Track, error) {
	var track Track
	if err := c.getJSON(ctx, "track", c.endpoint("tracks/%s", url.PathEscape(trackID)), &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// getJSON performs a GET and decodes the JSON response into v.
func (c *Client) getJSON(ctx context.Context, name, reqURL string, v any) error {
	return c.retry(ctx, name, func() error {
		return c.doSingleRequest(ctx, name, reqURL, v)
	})
}

// retry runs call until it succeeds, fails permanently or retryDelays is
// exhausted. Only a temporary *UpstreamError (rate limiting, server errors,
// timeouts) is retried; a longer Retry-After from the server takes
// precedence over the scheduled delay.
func (c *Client) retry(ctx context.Context, name string, call func() error) error {
	var lastErr error

	for attempt := 0; attempt <= len(c.retryDelays); attempt++ {
		if attempt > 0 {
			delay := c.retryDelays[attempt-1]
			if ue, ok := lastErr.(*UpstreamError); ok && ue.RetryAfter > delay {
				delay = ue.RetryAfter
			}
			logger.Debug("Retrying %s in %v (attempt %d): %v", name, delay, attempt+1, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := call()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		ue, ok := err.(*UpstreamError)
		if !ok || !ue.Temporary() {
			return err
		}
		lastErr = err
	}

	return lastErr
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, name, reqURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", name, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{Endpoint: name, Err: err}
	}
	defer resp.Body.Close()
	logger.LogHTTPRequest(req.Method, reqURL, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamError{
			Endpoint:   name,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &UpstreamError{
			Endpoint:   name,
			StatusCode: 0,
			Err:        fmt.Errorf("decoding response: %w", err),
		}
	}
	return nil
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(h string) time.Duration {
	secs, err := strconv.Atoi(h)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
