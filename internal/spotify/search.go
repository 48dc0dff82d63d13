package spotify

import (
	"context"
	"errors"
	"time"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/spotify-catalog-etl/internal/catalog"
	"github.com/justestif/spotify-catalog-etl/internal/logger"
)

// SearchArtist returns the first artist matching name.
// Returns ErrArtistNotFound if the search has no results.
func (c *Client) SearchArtist(ctx context.Context, name string) (catalog.ArtistInfo, error) {
	var result *spotify.SearchResult
	err := c.retry(ctx, "search", func() error {
		start := time.Now()
		var err error
		result, err = c.api.Search(ctx, name, spotify.SearchTypeArtist, spotify.Limit(1))
		if err != nil {
			return searchError(err)
		}
		logger.LogHTTPRequest("GET", "search?type=artist", 200, time.Since(start))
		return nil
	})
	if err != nil {
		return catalog.ArtistInfo{}, err
	}

	if result.Artists == nil || len(result.Artists.Artists) == 0 {
		return catalog.ArtistInfo{}, ErrArtistNotFound
	}

	return convertArtist(result.Artists.Artists[0]), nil
}

// searchError converts a search failure into an *UpstreamError so the
// retry policy can classify it.
func searchError(err error) error {
	upstream := &UpstreamError{Endpoint: "search", Err: err}
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		upstream.StatusCode = apiErr.Status
		upstream.Body = apiErr.Message
	}
	return upstream
}

// convertArtist converts a search match into an ArtistInfo.
func convertArtist(a spotify.FullArtist) catalog.ArtistInfo {
	genres := a.Genres
	if genres == nil {
		genres = []string{}
	}
	return catalog.ArtistInfo{
		Name:       a.Name,
		ID:         a.ID.String(),
		Popularity: int(a.Popularity),
		Followers:  int(a.Followers.Count),
		Genres:     genres,
	}
}
