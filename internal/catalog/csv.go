package catalog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrHeaderMismatch is returned when a snapshot's header differs from Columns.
	ErrHeaderMismatch = errors.New("snapshot header does not match flat row columns")

	// ErrEmptySnapshot is returned when a snapshot has no header row.
	ErrEmptySnapshot = errors.New("snapshot is empty")
)

// EncodeCSV serializes rows as CSV with a Columns header.
func EncodeCSV(rows []FlatRow) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSV writes a Columns header followed by one record per row.
// Line breaks inside text fields are written as LF.
func WriteCSV(w io.Writer, rows []FlatRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

// ReadCSV parses a snapshot written by WriteCSV.
// The header must match Columns exactly.
func ReadCSV(r io.Reader) ([]FlatRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Columns)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptySnapshot
	}
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) && errors.Is(parseErr.Err, csv.ErrFieldCount) {
			return nil, fmt.Errorf("%w: got %d columns, want %d", ErrHeaderMismatch, len(header), len(Columns))
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	// A UTF-8 BOM written by spreadsheet tools would otherwise break the first column name.
	header[0] = trimBOM(header[0])
	if !slices.Equal(header, Columns) {
		return nil, fmt.Errorf("%w: got %v", ErrHeaderMismatch, header)
	}

	rows := []FlatRow{}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", len(rows)+1, err)
		}
		row, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("parsing row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func (r FlatRow) record() []string {
	return []string{
		text(r.ArtistName),
		strconv.Itoa(r.Popularity),
		strconv.Itoa(r.Followers),
		text(r.Genres),
		text(r.AlbumName),
		text(r.AlbumID),
		text(r.ReleaseDate),
		strconv.Itoa(r.TotalTracks),
		strconv.Itoa(r.AvailableMarketsCount),
		text(r.AlbumType),
		text(r.AlbumGroup),
		strconv.Itoa(r.AlbumPopularity),
		text(r.AlbumGenres),
		text(r.AlbumLabel),
		strconv.Itoa(r.TrackNumber),
		text(r.TrackName),
		text(r.TrackID),
		strconv.Itoa(r.DurationMs),
		strconv.FormatBool(r.Explicit),
		strconv.Itoa(r.TrackPopularity),
		text(r.Artists),
	}
}

// text folds CRLF line breaks to LF. encoding/csv reads a quoted CRLF back
// as LF, so written snapshots hold exactly what ReadCSV returns.
func text(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// parseRecord converts a CSV record in Columns order into a FlatRow.
func parseRecord(rec []string) (FlatRow, error) {
	p := fieldParser{rec: rec}
	row := FlatRow{
		ArtistName:            rec[0],
		Popularity:            p.int(1),
		Followers:             p.int(2),
		Genres:                rec[3],
		AlbumName:             rec[4],
		AlbumID:               rec[5],
		ReleaseDate:           rec[6],
		TotalTracks:           p.int(7),
		AvailableMarketsCount: p.int(8),
		AlbumType:             rec[9],
		AlbumGroup:            rec[10],
		AlbumPopularity:       p.int(11),
		AlbumGenres:           rec[12],
		AlbumLabel:            rec[13],
		TrackNumber:           p.int(14),
		TrackName:             rec[15],
		TrackID:               rec[16],
		DurationMs:            p.int(17),
		Explicit:              p.bool(18),
		TrackPopularity:       p.int(19),
		Artists:               rec[20],
	}
	return row, p.err
}

// fieldParser keeps the first conversion error so a record parses in one pass.
type fieldParser struct {
	rec []string
	err error
}

func (p *fieldParser) int(i int) int {
	v, err := strconv.Atoi(p.rec[i])
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %s: %w", Columns[i], err)
	}
	return v
}

// bool accepts any strconv.ParseBool spelling ("true", "True", "1").
func (p *fieldParser) bool(i int) bool {
	v, err := strconv.ParseBool(p.rec[i])
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %s: %w", Columns[i], err)
	}
	return v
}

func trimBOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}
