package catalog

import "strings"

// Flatten denormalizes an artist and its albums into one row per track.
// Album order and track order within each album are preserved as given.
func Flatten(artist ArtistInfo, albums []AlbumInfo) []FlatRow {
	rows := make([]FlatRow, 0, TrackCount(albums))
	artistGenres := strings.Join(artist.Genres, ListSeparator)

	for _, album := range albums {
		albumGenres := strings.Join(album.Genres, ListSeparator)
		for _, track := range album.Tracks {
			rows = append(rows, FlatRow{
				ArtistName:            artist.Name,
				Popularity:            artist.Popularity,
				Followers:             artist.Followers,
				Genres:                artistGenres,
				AlbumName:             album.Name,
				AlbumID:               album.ID,
				ReleaseDate:           album.ReleaseDate,
				TotalTracks:           album.TotalTracks,
				AvailableMarketsCount: album.AvailableMarketsCount,
				AlbumType:             album.AlbumType,
				AlbumGroup:            album.AlbumGroup,
				AlbumPopularity:       album.Popularity,
				AlbumGenres:           albumGenres,
				AlbumLabel:            album.Label,
				TrackNumber:           track.TrackNumber,
				TrackName:             track.Name,
				TrackID:               track.ID,
				DurationMs:            track.DurationMs,
				Explicit:              track.Explicit,
				TrackPopularity:       track.Popularity,
				Artists:               strings.Join(track.Artists, ListSeparator),
			})
		}
	}

	return rows
}
