package datalake

import (
	"context"

	"github.com/pkg/errors"
)

// Column is one column of an output table. Type is a SQL type name
// understood by the writer (VARCHAR, BIGINT, UBIGINT, INTEGER, DOUBLE,
// TIMESTAMP).
type Column struct {
	Name string
	Type string
}

// Row is implemented by every output row type. Values are in the order of the
// table's Columns; nil means SQL NULL.
type Row interface {
	Values() []interface{}
}

// Table is a named collection of rows ready to be written.
type Table struct {
	Name        string
	Columns     []Column
	PartitionBy []string
	Rows        []Row
}

// Validate checks that every partition column exists and that every row has
// one value per column.
func (t *Table) Validate() error {
	if t.Name == "" {
		return errors.New("table has no name")
	}
	cols := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		cols[c.Name] = struct{}{}
	}
	for _, p := range t.PartitionBy {
		if _, ok := cols[p]; !ok {
			return errors.Errorf("partition column %q is not a column of %s", p, t.Name)
		}
	}
	for i, r := range t.Rows {
		if n := len(r.Values()); n != len(t.Columns) {
			return errors.Errorf("row %d of %s has %d values, want %d", i, t.Name, n, len(t.Columns))
		}
	}
	return nil
}

// Writer persists tables. Writing a table replaces whatever a previous write
// of the same table left behind; a failed write leaves it undefined.
type Writer interface {
	Write(ctx context.Context, t *Table) error
}

// Output table names.
const (
	SongsTable     = "songs"
	ArtistTable    = "artist"
	UsersTable     = "users"
	TimeTable      = "time"
	SongplaysTable = "songplays"
)

func rows[T Row](in []T) []Row {
	out := make([]Row, len(in))
	for i, r := range in {
		out[i] = r
	}
	return out
}

// NewSongsTable describes the songs dimension, partitioned by year and
// artist_id.
func NewSongsTable(songs []SongRow) *Table {
	return &Table{
		Name: SongsTable,
		Columns: []Column{
			{"song_id", "VARCHAR"},
			{"title", "VARCHAR"},
			{"artist_id", "VARCHAR"},
			{"year", "BIGINT"},
			{"duration", "DOUBLE"},
		},
		PartitionBy: []string{"year", "artist_id"},
		Rows:        rows(songs),
	}
}

// NewArtistTable describes the artist dimension. The artist_geohash column is
// only present when withGeohash is set.
func NewArtistTable(artists []ArtistRow, withGeohash bool) *Table {
	t := &Table{
		Name: ArtistTable,
		Columns: []Column{
			{"artist_id", "VARCHAR"},
			{"artist_name", "VARCHAR"},
			{"artist_location", "VARCHAR"},
			{"artist_latitude", "DOUBLE"},
			{"artist_longitude", "DOUBLE"},
		},
	}
	if withGeohash {
		t.Columns = append(t.Columns, Column{"artist_geohash", "VARCHAR"})
		t.Rows = rows(artists)
		return t
	}
	t.Rows = make([]Row, len(artists))
	for i, a := range artists {
		t.Rows[i] = artistNoGeohash(a)
	}
	return t
}

type artistNoGeohash ArtistRow

func (a artistNoGeohash) Values() []interface{} {
	return ArtistRow(a).Values()[:5]
}

// NewUsersTable describes the users dimension.
func NewUsersTable(users []UserRow) *Table {
	return &Table{
		Name: UsersTable,
		Columns: []Column{
			{"firstName", "VARCHAR"},
			{"lastName", "VARCHAR"},
			{"gender", "VARCHAR"},
			{"level", "VARCHAR"},
			{"userId", "VARCHAR"},
		},
		Rows: rows(users),
	}
}

// NewTimeTable describes the time dimension, partitioned by year and month.
func NewTimeTable(times []TimeRow) *Table {
	return &Table{
		Name: TimeTable,
		Columns: []Column{
			{"start_time", "TIMESTAMP"},
			{"hour", "INTEGER"},
			{"day", "INTEGER"},
			{"week", "INTEGER"},
			{"month", "INTEGER"},
			{"year", "INTEGER"},
			{"weekday", "INTEGER"},
		},
		PartitionBy: []string{"year", "month"},
		Rows:        rows(times),
	}
}

// NewSongplaysTable describes the songplays fact table, partitioned by year
// and month of start_time.
func NewSongplaysTable(songplays []Songplay) *Table {
	return &Table{
		Name: SongplaysTable,
		Columns: []Column{
			{"songplay_id", "UBIGINT"},
			{"start_time", "TIMESTAMP"},
			{"userId", "VARCHAR"},
			{"level", "VARCHAR"},
			{"sessionId", "BIGINT"},
			{"location", "VARCHAR"},
			{"userAgent", "VARCHAR"},
			{"song_id", "VARCHAR"},
			{"artist_id", "VARCHAR"},
			{"year", "INTEGER"},
			{"month", "INTEGER"},
		},
		PartitionBy: []string{"year", "month"},
		Rows:        rows(songplays),
	}
}
