package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/spotify-catalog-etl/internal/catalog"
	"github.com/justestif/spotify-catalog-etl/internal/logger"
	"github.com/justestif/spotify-catalog-etl/internal/spotify"
)

// SessionFunc opens a fresh catalog API session for one run.
type SessionFunc func(ctx context.Context) (spotify.Fetcher, error)

// FetchService runs the fetch pipeline: token, walk, flatten, publish.
type FetchService struct {
	newSession    SessionFunc
	publisher     *Publisher
	defaultArtist string
	walkerOpts    []spotify.WalkerOption
}

// NewFetchService creates a FetchService. Runs with no artist name use
// defaultArtist.
func NewFetchService(newSession SessionFunc, publisher *Publisher, defaultArtist string, walkerOpts ...spotify.WalkerOption) *FetchService {
	return &FetchService{
		newSession:    newSession,
		publisher:     publisher,
		defaultArtist: defaultArtist,
		walkerOpts:    walkerOpts,
	}
}

// FetchResult is the outcome of a successful fetch run.
type FetchResult struct {
	RunID         uuid.UUID
	Artist        string
	AlbumsListed  int
	AlbumsFetched int
	Rows          int
	Key           string
	Location      string
	Report        spotify.WalkReport
	Message       string
}

// Run fetches artistName's catalog and publishes it as a snapshot.
// Nothing is written to storage unless the walk succeeds.
func (s *FetchService) Run(ctx context.Context, artistName string) (*FetchResult, error) {
	artistName = strings.TrimSpace(artistName)
	if artistName == "" {
		artistName = s.defaultArtist
	}

	runID := uuid.New()
	start := time.Now()
	logger.Info("Fetch run %s started for %q", runID, artistName)

	result, err := s.run(ctx, runID, artistName)
	logger.LogOperation("fetch run "+runID.String(), start, err)
	return result, err
}

func (s *FetchService) run(ctx context.Context, runID uuid.UUID, artistName string) (*FetchResult, error) {
	session, err := s.newSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}

	snapshot, err := spotify.NewWalker(session, s.walkerOpts...).Walk(ctx, artistName)
	if err != nil {
		return nil, err
	}

	rows := catalog.Flatten(snapshot.Artist, snapshot.Albums)
	logger.Debug("Flattened %d rows for %q", len(rows), snapshot.Artist.Name)

	// The key uses the resolved display name, not the query.
	published, err := s.publisher.Publish(ctx, snapshot.Artist.Name, rows)
	if err != nil {
		return nil, err
	}

	return &FetchResult{
		RunID:         runID,
		Artist:        snapshot.Artist.Name,
		AlbumsListed:  snapshot.Report.AlbumsListed,
		AlbumsFetched: snapshot.Report.AlbumsFetched,
		Rows:          published.Rows,
		Key:           published.Key,
		Location:      published.Location,
		Report:        snapshot.Report,
		Message:       "Data successfully uploaded to " + published.Location,
	}, nil
}
