// Package pipeline runs the fetch and load pipelines: walk an artist's
// catalog into a CSV snapshot in object storage, and replace a table with
// the contents of a snapshot.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/justestif/spotify-catalog-etl/internal/catalog"
	"github.com/justestif/spotify-catalog-etl/internal/logger"
	"github.com/justestif/spotify-catalog-etl/internal/storage"
)

// ContentType is the media type snapshots are stored with.
const ContentType = "text/csv"

// SnapshotKey returns the object key for an artist's snapshot taken at t,
// dated in loc: "<YYYY-MM-DD>_<artist>_data.csv".
func SnapshotKey(t time.Time, loc *time.Location, artist string) string {
	return fmt.Sprintf("%s_%s_data.csv", t.In(loc).Format(time.DateOnly), artist)
}

// Publisher writes flat rows to object storage as a CSV snapshot.
type Publisher struct {
	store storage.ObjectStore
	loc   *time.Location
	now   func() time.Time
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithClock sets the time source used to date snapshot keys.
func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) {
		p.now = now
	}
}

// NewPublisher creates a Publisher that dates keys in loc.
func NewPublisher(store storage.ObjectStore, loc *time.Location, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store: store,
		loc:   loc,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishResult describes a stored snapshot.
type PublishResult struct {
	Key      string
	Location string
	Rows     int
	Bytes    int
}

// Key returns today's snapshot key for artist.
func (p *Publisher) Key(artist string) string {
	return SnapshotKey(p.now(), p.loc, artist)
}

// Publish encodes rows with the fixed header and uploads them under
// today's key for artist. Storage failures are returned as
// *storage.StorageError.
func (p *Publisher) Publish(ctx context.Context, artist string, rows []catalog.FlatRow) (PublishResult, error) {
	start := time.Now()

	data, err := catalog.EncodeCSV(rows)
	if err != nil {
		return PublishResult{}, fmt.Errorf("encoding snapshot: %w", err)
	}

	key := p.Key(artist)
	err = p.store.Put(ctx, key, data, ContentType)
	logger.LogOperation("publish "+key, start, err)
	if err != nil {
		return PublishResult{}, err
	}

	return PublishResult{
		Key:      key,
		Location: p.store.Location(key),
		Rows:     len(rows),
		Bytes:    len(data),
	}, nil
}
