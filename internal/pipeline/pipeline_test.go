package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/justestif/spotify-catalog-etl/internal/catalog"
	"github.com/justestif/spotify-catalog-etl/internal/db"
	"github.com/justestif/spotify-catalog-etl/internal/spotify"
	"github.com/justestif/spotify-catalog-etl/internal/storage"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("loading zone: %v", err)
	}
	return loc
}

// fixedClock returns 2025-02-18 10:00 in New York.
func fixedClock() time.Time {
	return time.Date(2025, 2, 18, 15, 0, 0, 0, time.UTC)
}

// memStore is an in-memory ObjectStore.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if s.putErr != nil {
		return &storage.StorageError{Op: "put", Location: s.Location(key), Err: s.putErr}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = bytes.Clone(data)
	s.types[key] = contentType
	return nil
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, &storage.StorageError{Op: "get", Location: s.Location(key), Err: storage.ErrNotFound}
	}
	return data, nil
}

func (s *memStore) Location(key string) string {
	return "mem://" + key
}

// memTable is an in-memory TableWriter with full-replace semantics.
type memTable struct {
	rows       []catalog.FlatRow
	replaceErr error
}

func (t *memTable) Table() string { return "artist_data" }

func (t *memTable) ReplaceAll(ctx context.Context, rows []catalog.FlatRow) (int64, error) {
	if t.replaceErr != nil {
		return 0, t.replaceErr
	}
	t.rows = append([]catalog.FlatRow(nil), rows...)
	return int64(len(rows)), nil
}

func makeRows(prefix string, n int) []catalog.FlatRow {
	rows := make([]catalog.FlatRow, n)
	for i := range rows {
		rows[i] = catalog.FlatRow{
			ArtistName:      prefix,
			Popularity:      50,
			Followers:       1000,
			Genres:          "",
			AlbumName:       prefix + " LP",
			AlbumID:         prefix + "-album",
			ReleaseDate:     "2020-01-01",
			TotalTracks:     n,
			AlbumType:       "album",
			AlbumGroup:      "album",
			AlbumPopularity: 40,
			AlbumGenres:     "",
			AlbumLabel:      catalog.NotAvailable,
			TrackNumber:     i + 1,
			TrackName:       fmt.Sprintf("%s track %d", prefix, i+1),
			TrackID:         fmt.Sprintf("%s-t%d", prefix, i+1),
			DurationMs:      180000,
			Explicit:        i%2 == 0,
			TrackPopularity: 30,
			Artists:         prefix,
		}
	}
	return rows
}

// catalogServer serves the token endpoint and a one-album catalog for
// "Example Artist".
func catalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "id" || pass != "secret" {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	api := func(pattern, body string) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				t.Errorf("%s: Authorization = %q", r.URL.Path, r.Header.Get("Authorization"))
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body))
		})
	}
	api("/v1/search", `{"artists":{"href":"","limit":1,"offset":0,"total":1,"items":[
		{"id":"abc123","name":"Example Artist","popularity":70,"followers":{"href":null,"total":900},"genres":[]}]}}`)
	api("/v1/artists/abc123/albums", `{"items":[
		{"id":"album1","name":"First LP","release_date":"2024-05-01","total_tracks":2,
		 "available_markets":["US","CA"],"album_type":"album","album_group":"album"}],"next":null}`)
	api("/v1/albums/album1", `{"id":"album1","popularity":55,"genres":[],"label":"Indie",
		"tracks":{"items":[
			{"id":"t1","name":"Opener","duration_ms":200000,"explicit":false,"track_number":1,"available_markets":["US"]},
			{"id":"t2","name":"Closer","duration_ms":210000,"explicit":true,"track_number":2,"available_markets":["US"]}],
		"next":null}}`)
	api("/v1/tracks/t1", `{"id":"t1","popularity":60,"artists":[{"id":"abc123","name":"Example Artist"}]}`)
	api("/v1/tracks/t2", `{"id":"t2","popularity":61,"artists":[{"id":"abc123","name":"Example Artist"},{"id":"x","name":"Guest"}]}`)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func sessionFor(server *httptest.Server, secret string) SessionFunc {
	provider := spotify.NewTokenProvider("id", secret,
		spotify.WithTokenURL(server.URL+"/api/token"),
		spotify.WithAuthHTTPClient(server.Client()),
	)
	return func(ctx context.Context) (spotify.Fetcher, error) {
		client, err := spotify.NewSession(ctx, provider, time.Second,
			spotify.WithBaseURL(server.URL+"/v1/"),
			spotify.WithRetryDelays(),
		)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func TestSnapshotKey(t *testing.T) {
	loc := newYork(t)
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"daytime", fixedClock(), "2025-02-18_Example Artist_data.csv"},
		{"late evening in New York is still the same day", time.Date(2025, 2, 19, 3, 0, 0, 0, time.UTC), "2025-02-18_Example Artist_data.csv"},
		{"after midnight in New York", time.Date(2025, 2, 19, 5, 30, 0, 0, time.UTC), "2025-02-19_Example Artist_data.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SnapshotKey(tt.at, loc, "Example Artist"); got != tt.want {
				t.Errorf("SnapshotKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetchService_EndToEnd(t *testing.T) {
	server := catalogServer(t)
	store := storage.NewFileStore(t.TempDir())
	publisher := NewPublisher(store, newYork(t), WithClock(fixedClock))
	svc := NewFetchService(sessionFor(server, "secret"), publisher, "Charlie Puth", spotify.WithConcurrency(2))

	result, err := svc.Run(context.Background(), "Example Artist")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	const wantKey = "2025-02-18_Example Artist_data.csv"
	if result.Key != wantKey {
		t.Errorf("Key = %q, want %q", result.Key, wantKey)
	}
	if result.Rows != 2 || result.AlbumsFetched != 1 || result.AlbumsListed != 1 {
		t.Errorf("result = %+v, want 2 rows from 1 album", result)
	}
	if !strings.HasPrefix(result.Message, "Data successfully uploaded to ") || !strings.HasSuffix(result.Message, wantKey) {
		t.Errorf("Message = %q", result.Message)
	}

	blob, err := store.Get(context.Background(), wantKey)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(blob)).ReadAll()
	if err != nil {
		t.Fatalf("parsing blob: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("blob has %d lines, want header + 2", len(records))
	}

	rows, err := catalog.ReadCSV(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if rows[0].AlbumID != "album1" || rows[1].AlbumID != "album1" {
		t.Errorf("album ids = %q, %q, want album1", rows[0].AlbumID, rows[1].AlbumID)
	}
	if rows[0].TrackID == rows[1].TrackID || rows[0].TrackNumber == rows[1].TrackNumber {
		t.Errorf("tracks not distinct: %+v / %+v", rows[0], rows[1])
	}
	if rows[1].Artists != "Example Artist, Guest" {
		t.Errorf("Artists = %q", rows[1].Artists)
	}
	if rows[0].Genres != "" || rows[0].AlbumLabel != "Indie" {
		t.Errorf("(Genres, AlbumLabel) = (%q, %q)", rows[0].Genres, rows[0].AlbumLabel)
	}
}

func TestFetchService_Errors(t *testing.T) {
	server := catalogServer(t)

	t.Run("bad credentials stop before any upload", func(t *testing.T) {
		store := newMemStore()
		svc := NewFetchService(sessionFor(server, "wrong"), NewPublisher(store, time.UTC), "Example Artist")

		_, err := svc.Run(context.Background(), "")

		var authErr *spotify.AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("Run() error = %v, want *spotify.AuthError", err)
		}
		if authErr.StatusCode != http.StatusUnauthorized {
			t.Errorf("StatusCode = %d, want 401", authErr.StatusCode)
		}
		if len(store.objects) != 0 {
			t.Errorf("stored %d objects, want none", len(store.objects))
		}
	})

	t.Run("storage failure is surfaced", func(t *testing.T) {
		store := newMemStore()
		store.putErr = errors.New("access denied")
		svc := NewFetchService(sessionFor(server, "secret"), NewPublisher(store, time.UTC), "Example Artist")

		_, err := svc.Run(context.Background(), "Example Artist")

		var storageErr *storage.StorageError
		if !errors.As(err, &storageErr) {
			t.Fatalf("Run() error = %v, want *storage.StorageError", err)
		}
		if storageErr.Op != "put" {
			t.Errorf("Op = %q, want put", storageErr.Op)
		}
	})
}

func TestLoader_ReplacesStaleRows(t *testing.T) {
	store := newMemStore()
	publisher := NewPublisher(store, newYork(t), WithClock(fixedClock))
	table := &memTable{rows: makeRows("stale", 500)}

	published, err := publisher.Publish(context.Background(), "Example Artist", makeRows("fresh", 10))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got := store.types[published.Key]; got != "text/csv" {
		t.Errorf("content type = %q, want text/csv", got)
	}

	loader := NewLoader(store, table, func() string { return publisher.Key("Example Artist") })
	result, err := loader.Load(context.Background(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if result.Rows != 10 || len(table.rows) != 10 {
		t.Fatalf("table has %d rows (result %d), want 10", len(table.rows), result.Rows)
	}
	for _, row := range table.rows {
		if row.ArtistName != "fresh" {
			t.Fatalf("stale row survived: %+v", row)
		}
	}
	if result.Key != "2025-02-18_Example Artist_data.csv" {
		t.Errorf("Key = %q", result.Key)
	}
}

func TestLoader_RoundTrip(t *testing.T) {
	store := newMemStore()
	publisher := NewPublisher(store, time.UTC, WithClock(fixedClock))
	want := makeRows("round", 3)
	want[1].TrackName = `He said "hi", then left`

	published, err := publisher.Publish(context.Background(), "Round", want)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	table := &memTable{}
	if _, err := NewLoader(store, table, nil).Load(context.Background(), published.Key); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(table.rows) != len(want) {
		t.Fatalf("loaded %d rows, want %d", len(table.rows), len(want))
	}
	for i := range want {
		if table.rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, table.rows[i], want[i])
		}
	}
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name      string
		blob      string
		noBlob    bool
		tableErr  error
		wantErrIs error
		wantLoad  bool
	}{
		{name: "missing snapshot", noBlob: true, wantErrIs: storage.ErrNotFound},
		{name: "header mismatch", blob: "artist_name,popularity\nA,1\n", wantErrIs: catalog.ErrHeaderMismatch, wantLoad: true},
		{name: "empty snapshot", blob: "", wantErrIs: catalog.ErrEmptySnapshot, wantLoad: true},
		{name: "table write fails", blob: "", tableErr: errors.New("connection reset"), wantLoad: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			blob := []byte(tt.blob)
			if tt.tableErr != nil {
				var err error
				blob, err = catalog.EncodeCSV(makeRows("x", 1))
				if err != nil {
					t.Fatal(err)
				}
			}
			if !tt.noBlob {
				store.objects["snap.csv"] = blob
			}
			table := &memTable{rows: makeRows("prior", 5), replaceErr: tt.tableErr}

			_, err := NewLoader(store, table, nil).Load(context.Background(), "snap.csv")
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if tt.wantErrIs != nil && !errors.Is(err, tt.wantErrIs) {
				t.Errorf("Load() error = %v, want %v", err, tt.wantErrIs)
			}
			var loadErr *db.LoadError
			if got := errors.As(err, &loadErr); got != tt.wantLoad {
				t.Errorf("errors.As(*db.LoadError) = %v, want %v (err %v)", got, tt.wantLoad, err)
			}
			if len(table.rows) != 5 {
				t.Errorf("table has %d rows after failed load, want 5 prior rows", len(table.rows))
			}
		})
	}
}
