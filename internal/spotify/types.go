package spotify

// Catalog payloads decode optional fields into pointers so that an absent
// field can be told apart from a zero value.

// AlbumPage is one page of an artist's album listing.
type AlbumPage struct {
	Items []SimpleAlbum `json:"items"`
	Next  *string       `json:"next"`
	Total int           `json:"total"`
}

// SimpleAlbum is an album summary from the artist albums listing.
type SimpleAlbum struct {
	ID               *string  `json:"id"`
	Name             *string  `json:"name"`
	ReleaseDate      *string  `json:"release_date"`
	TotalTracks      *int     `json:"total_tracks"`
	AvailableMarkets []string `json:"available_markets"`
	AlbumType        *string  `json:"album_type"`
	AlbumGroup       *string  `json:"album_group"`
}

// Album is the full album detail payload.
type Album struct {
	ID         *string   `json:"id"`
	Popularity *int      `json:"popularity"`
	Genres     []string  `json:"genres"`
	Label      *string   `json:"label"`
	Tracks     TrackPage `json:"tracks"`
}

// TrackPage is one page of an album's track listing.
type TrackPage struct {
	Items []SimpleTrack `json:"items"`
	Next  *string       `json:"next"`
}

// SimpleTrack is a track summary embedded in an album payload.
type SimpleTrack struct {
	ID               *string  `json:"id"`
	Name             *string  `json:"name"`
	DurationMs       *int     `json:"duration_ms"`
	Explicit         *bool    `json:"explicit"`
	TrackNumber      *int     `json:"track_number"`
	AvailableMarkets []string `json:"available_markets"`
}

// Track is the full track detail payload.
type Track struct {
	ID         *string     `json:"id"`
	Popularity *int        `json:"popularity"`
	Artists    []ArtistRef `json:"artists"`
}

// ArtistRef is a credited artist on a track.
type ArtistRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// nextURL returns the page cursor, or "" when there are no more pages.
func nextURL(next *string) string {
	if next == nil {
		return ""
	}
	return *next
}
