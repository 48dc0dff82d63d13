// Package catalog defines the artist/album/track snapshot model and its flat
// tabular form.
package catalog

// NotAvailable is the placeholder for string fields missing from an API payload.
const NotAvailable = "N/A"

// ListSeparator joins list-valued fields in the flat representation.
const ListSeparator = ", "

// ArtistInfo describes the artist a snapshot was taken for.
type ArtistInfo struct {
	Name       string
	ID         string
	Popularity int
	Followers  int
	Genres     []string
}

// AlbumInfo describes one album of the artist, enriched with its detail
// payload and track list.
type AlbumInfo struct {
	Name                  string
	ID                    string
	ReleaseDate           string // year, year-month or full date as returned by the API
	TotalTracks           int
	AvailableMarketsCount int
	AlbumType             string // album, single or compilation
	AlbumGroup            string // album, single, compilation, appears_on or N/A
	Popularity            int
	Genres                []string
	Label                 string
	Tracks                []TrackInfo
}

// TrackInfo describes one track of an album.
type TrackInfo struct {
	Name                  string
	ID                    string
	DurationMs            int
	Explicit              bool
	TrackNumber           int
	AvailableMarketsCount int
	Popularity            int
	Artists               []string // credited artist names
}

// FlatRow is one track joined with its album and artist fields.
type FlatRow struct {
	ArtistName            string
	Popularity            int
	Followers             int
	Genres                string
	AlbumName             string
	AlbumID               string
	ReleaseDate           string
	TotalTracks           int
	AvailableMarketsCount int
	AlbumType             string
	AlbumGroup            string
	AlbumPopularity       int
	AlbumGenres           string
	AlbumLabel            string
	TrackNumber           int
	TrackName             string
	TrackID               string
	DurationMs            int
	Explicit              bool
	TrackPopularity       int
	Artists               string
}

// Columns lists the flat row column names in export order.
var Columns = []string{
	"artist_name",
	"popularity",
	"followers",
	"genres",
	"album_name",
	"album_id",
	"release_date",
	"total_tracks",
	"available_markets_count",
	"album_type",
	"album_group",
	"album_popularity",
	"album_genres",
	"album_label",
	"track_number",
	"track_name",
	"track_id",
	"duration_ms",
	"explicit",
	"track_popularity",
	"artists",
}

// Values returns the row's fields in Columns order, typed for database insertion.
func (r FlatRow) Values() []any {
	return []any{
		r.ArtistName,
		r.Popularity,
		r.Followers,
		r.Genres,
		r.AlbumName,
		r.AlbumID,
		r.ReleaseDate,
		r.TotalTracks,
		r.AvailableMarketsCount,
		r.AlbumType,
		r.AlbumGroup,
		r.AlbumPopularity,
		r.AlbumGenres,
		r.AlbumLabel,
		r.TrackNumber,
		r.TrackName,
		r.TrackID,
		r.DurationMs,
		r.Explicit,
		r.TrackPopularity,
		r.Artists,
	}
}

// TrackCount returns the total number of tracks across albums.
func TrackCount(albums []AlbumInfo) int {
	n := 0
	for _, a := range albums {
		n += len(a.Tracks)
	}
	return n
}
