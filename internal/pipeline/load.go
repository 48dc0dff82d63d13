package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/spotify-catalog-etl/internal/catalog"
	"github.com/justestif/spotify-catalog-etl/internal/db"
	"github.com/justestif/spotify-catalog-etl/internal/logger"
	"github.com/justestif/spotify-catalog-etl/internal/storage"
)

// TableWriter replaces the contents of one destination table.
// *db.SnapshotRepository implements it.
type TableWriter interface {
	Table() string
	ReplaceAll(ctx context.Context, rows []catalog.FlatRow) (int64, error)
}

// Loader runs the load pipeline: read a snapshot, parse it and replace the
// destination table with its rows. Loads through one Loader never overlap.
type Loader struct {
	store      storage.ObjectStore
	table      TableWriter
	defaultKey func() string

	mu sync.Mutex
}

// NewLoader creates a Loader. defaultKey supplies the snapshot key for
// loads that do not name one.
func NewLoader(store storage.ObjectStore, table TableWriter, defaultKey func() string) *Loader {
	return &Loader{
		store:      store,
		table:      table,
		defaultKey: defaultKey,
	}
}

// LoadResult is the outcome of a successful load.
type LoadResult struct {
	RunID    uuid.UUID
	Key      string
	Location string
	Table    string
	Rows     int64
	Message  string
}

// Load replaces the table with the snapshot stored at key, or at the
// default key when key is empty. A snapshot that cannot be parsed or
// written fails with *db.LoadError and leaves the table untouched.
func (l *Loader) Load(ctx context.Context, key string) (*LoadResult, error) {
	if key == "" {
		key = l.defaultKey()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	runID := uuid.New()
	start := time.Now()
	logger.Info("Load run %s started for %s", runID, l.store.Location(key))

	result, err := l.load(ctx, runID, key)
	logger.LogOperation("load run "+runID.String(), start, err)
	return result, err
}

func (l *Loader) load(ctx context.Context, runID uuid.UUID, key string) (*LoadResult, error) {
	data, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	rows, err := catalog.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, &db.LoadError{
			Table: l.table.Table(),
			Err:   fmt.Errorf("parsing snapshot %s: %w", key, err),
		}
	}
	logger.Debug("Parsed %d rows from %s", len(rows), key)

	n, err := l.table.ReplaceAll(ctx, rows)
	if err != nil {
		var loadErr *db.LoadError
		if errors.As(err, &loadErr) {
			return nil, err
		}
		return nil, &db.LoadError{Table: l.table.Table(), Err: err}
	}

	return &LoadResult{
		RunID:    runID,
		Key:      key,
		Location: l.store.Location(key),
		Table:    l.table.Table(),
		Rows:     n,
		Message:  fmt.Sprintf("Data successfully loaded into %s (%d rows)", l.table.Table(), n),
	}, nil
}
