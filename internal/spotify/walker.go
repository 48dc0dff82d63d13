package spotify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/justestif/spotify-catalog-etl/internal/catalog"
	"github.com/justestif/spotify-catalog-etl/internal/logger"
)

// Fetcher abstracts the catalog API calls the walker depends on.
// *Client implements it.
type Fetcher interface {
	SearchArtist(ctx context.Context, name string) (catalog.ArtistInfo, error)
	ArtistAlbums(ctx context.Context, artistID, pageURL string) (*AlbumPage, error)
	Album(ctx context.Context, albumID string) (*Album, error)
	AlbumTracks(ctx context.Context, pageURL string) (*TrackPage, error)
	Track(ctx context.Context, trackID string) (*Track, error)
}

// DefaultConcurrency keeps detail calls sequential: one request in flight.
const DefaultConcurrency = 1

// Walker resolves an artist and walks its albums and tracks.
//
// A run costs 1 + P + A + T calls (search, album pages, album details,
// track details). With concurrency n > 1 the album details run n at a time
// and each album's track details run n at a time, so up to n*n requests may
// be in flight. Output order never depends on concurrency.
type Walker struct {
	fetcher          Fetcher
	concurrency      int
	skipFailedAlbums bool
}

// WalkerOption configures a Walker.
type WalkerOption func(*Walker)

// WithConcurrency sets how many detail calls run at once.
func WithConcurrency(n int) WalkerOption {
	return func(w *Walker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithSkipFailedAlbums drops albums whose detail fetch fails instead of
// aborting the walk. Dropped albums are listed in the WalkReport.
func WithSkipFailedAlbums(skip bool) WalkerOption {
	return func(w *Walker) {
		w.skipFailedAlbums = skip
	}
}

// NewWalker creates a Walker over the given fetcher.
func NewWalker(fetcher Fetcher, opts ...WalkerOption) *Walker {
	w := &Walker{
		fetcher:     fetcher,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Snapshot is the nested result of one walk.
type Snapshot struct {
	Artist catalog.ArtistInfo
	Albums []catalog.AlbumInfo
	Report WalkReport
}

// WalkReport summarizes how much of the catalog was fetched.
type WalkReport struct {
	AlbumsListed  int
	AlbumsFetched int
	TracksFetched int
	Failed        []AlbumFailure
}

// AlbumFailure records an album dropped from the walk.
type AlbumFailure struct {
	AlbumID string
	Name    string
	Err     error
}

// String renders the report as "N of M albums fetched (T tracks)".
func (r WalkReport) String() string {
	return fmt.Sprintf("%d of %d albums fetched (%d tracks)", r.AlbumsFetched, r.AlbumsListed, r.TracksFetched)
}

// Walk resolves name and fetches the artist's full catalog.
func (w *Walker) Walk(ctx context.Context, name string) (*Snapshot, error) {
	artist, err := w.ResolveArtist(ctx, name)
	if err != nil {
		return nil, err
	}
	logger.Info("Resolved artist %q (id %s)", artist.Name, artist.ID)

	albums, report, err := w.ListAlbums(ctx, artist.ID)
	if err != nil {
		return nil, err
	}

	return &Snapshot{Artist: artist, Albums: albums, Report: report}, nil
}

// ResolveArtist returns the first search match for name.
// Returns ErrArtistNotFound when there is none.
func (w *Walker) ResolveArtist(ctx context.Context, name string) (catalog.ArtistInfo, error) {
	artist, err := w.fetcher.SearchArtist(ctx, name)
	if err != nil {
		if errors.Is(err, ErrArtistNotFound) {
			return catalog.ArtistInfo{}, fmt.Errorf("%w: %q", ErrArtistNotFound, name)
		}
		return catalog.ArtistInfo{}, fmt.Errorf("searching artist: %w", err)
	}
	return artist, nil
}

// albumSlot holds one listed album while its details are fetched.
type albumSlot struct {
	album  catalog.AlbumInfo
	failed bool
}

// ListAlbums pages through the artist's albums, following every next cursor,
// and enriches each album with its details as soon as it is listed.
func (w *Walker) ListAlbums(ctx context.Context, artistID string) ([]catalog.AlbumInfo, WalkReport, error) {
	var (
		report   WalkReport
		reportMu sync.Mutex
		slots    []*albumSlot
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	pageURL := ""
	for page := 1; ; page++ {
		p, err := w.fetcher.ArtistAlbums(gctx, artistID, pageURL)
		if err != nil {
			// A failed detail call cancels gctx; report that failure, not the
			// cancellation it caused here.
			if werr := g.Wait(); werr != nil {
				return nil, report, werr
			}
			return nil, report, fmt.Errorf("listing albums (page %d): %w", page, err)
		}

		for _, summary := range p.Items {
			slot := &albumSlot{album: albumFromSummary(summary)}
			slots = append(slots, slot)

			g.Go(func() error {
				err := w.enrichAlbum(gctx, &slot.album)
				if err == nil {
					return nil
				}
				if !w.skipFailedAlbums || gctx.Err() != nil {
					return fmt.Errorf("album %s (%s): %w", slot.album.ID, slot.album.Name, err)
				}

				logger.Warn("Skipping album %q: %v", slot.album.Name, err)
				slot.failed = true
				reportMu.Lock()
				report.Failed = append(report.Failed, AlbumFailure{
					AlbumID: slot.album.ID,
					Name:    slot.album.Name,
					Err:     err,
				})
				reportMu.Unlock()
				return nil
			})
		}

		logger.Debug("Listed %d albums after page %d", len(slots), page)

		pageURL = nextURL(p.Next)
		if pageURL == "" || gctx.Err() != nil {
			break
		}
	}

	if err := g.Wait(); err != nil {
		return nil, report, err
	}

	albums := make([]catalog.AlbumInfo, 0, len(slots))
	for _, s := range slots {
		if s.failed {
			continue
		}
		albums = append(albums, s.album)
	}

	report.AlbumsListed = len(slots)
	report.AlbumsFetched = len(albums)
	report.TracksFetched = catalog.TrackCount(albums)
	logger.Info("Walk finished: %s", report)

	return albums, report, nil
}

// enrichAlbum merges album details into a listed album.
func (w *Walker) enrichAlbum(ctx context.Context, album *catalog.AlbumInfo) error {
	if album.ID == catalog.NotAvailable {
		return errors.New("album summary has no id")
	}

	details, err := w.AlbumDetails(ctx, album.ID)
	if err != nil {
		return err
	}

	album.Popularity = details.Popularity
	album.Genres = details.Genres
	album.Label = details.Label
	album.Tracks = details.Tracks
	return nil
}

// AlbumDetails holds the fields recovered from an album's detail payload.
type AlbumDetails struct {
	Popularity int
	Genres     []string
	Label      string
	Tracks     []catalog.TrackInfo
}

// AlbumDetails fetches one album's detail and the detail of each of its
// tracks. Track order is the order the API returns.
func (w *Walker) AlbumDetails(ctx context.Context, albumID string) (AlbumDetails, error) {
	album, err := w.fetcher.Album(ctx, albumID)
	if err != nil {
		return AlbumDetails{}, fmt.Errorf("fetching album details: %w", err)
	}

	items := album.Tracks.Items
	for next := nextURL(album.Tracks.Next); next != ""; {
		page, err := w.fetcher.AlbumTracks(ctx, next)
		if err != nil {
			return AlbumDetails{}, fmt.Errorf("fetching album tracks: %w", err)
		}
		items = append(items, page.Items...)
		next = nextURL(page.Next)
	}

	tracks := make([]catalog.TrackInfo, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for i, item := range items {
		tracks[i] = trackFromSummary(item)
		if item.ID == nil {
			// Nothing to look up; keep the sentinels.
			continue
		}
		g.Go(func() error {
			detail, err := w.fetcher.Track(gctx, *item.ID)
			if err != nil {
				return fmt.Errorf("fetching track %s: %w", *item.ID, err)
			}
			applyTrackDetails(&tracks[i], detail)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return AlbumDetails{}, err
	}

	return AlbumDetails{
		Popularity: intOrZero(album.Popularity),
		Genres:     listOrEmpty(album.Genres),
		Label:      stringOrNA(album.Label),
		Tracks:     tracks,
	}, nil
}

// albumFromSummary converts an album listing item, applying sentinels for
// absent fields.
func albumFromSummary(s SimpleAlbum) catalog.AlbumInfo {
	return catalog.AlbumInfo{
		Name:                  stringOrNA(s.Name),
		ID:                    stringOrNA(s.ID),
		ReleaseDate:           stringOrNA(s.ReleaseDate),
		TotalTracks:           intOrZero(s.TotalTracks),
		AvailableMarketsCount: len(s.AvailableMarkets),
		AlbumType:             stringOrNA(s.AlbumType),
		AlbumGroup:            stringOrNA(s.AlbumGroup),
		Genres:                []string{},
		Label:                 catalog.NotAvailable,
	}
}

// trackFromSummary converts an album track item, applying sentinels for
// absent fields.
func trackFromSummary(s SimpleTrack) catalog.TrackInfo {
	explicit := false
	if s.Explicit != nil {
		explicit = *s.Explicit
	}
	return catalog.TrackInfo{
		Name:                  stringOrNA(s.Name),
		ID:                    stringOrNA(s.ID),
		DurationMs:            intOrZero(s.DurationMs),
		Explicit:              explicit,
		TrackNumber:           intOrZero(s.TrackNumber),
		AvailableMarketsCount: len(s.AvailableMarkets),
		Artists:               []string{},
	}
}

// applyTrackDetails merges the fields only the track endpoint returns.
func applyTrackDetails(t *catalog.TrackInfo, d *Track) {
	t.Popularity = intOrZero(d.Popularity)
	names := make([]string, len(d.Artists))
	for i, a := range d.Artists {
		names[i] = a.Name
	}
	t.Artists = names
}

func stringOrNA(s *string) string {
	if s == nil {
		return catalog.NotAvailable
	}
	return *s
}

func intOrZero(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}

func listOrEmpty(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}
