package leveldb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/sparkify/datalake"
	"github.com/sparkify/datalake/test"
)

func TestSeen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seen")
	s, err := NewSeen(dir)
	test.ErrNil(t, err, "NewSeen")

	for i, tst := range []struct {
		key string
		exp bool
	}{
		{"a", true}, {"b", true}, {"a", false}, {"", true}, {"", false}, {"b", false},
	} {
		got, err := s.Add(tst.key)
		test.ErrNil(t, err, "Add")
		test.MustBe(t, tst.exp, got, fmt.Sprintf("add %d (%q)", i, tst.key))
	}

	test.ErrNil(t, s.Close(), "Close")
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("seen directory survived Close: %v", err)
	}
}

func TestSeenFuncWithDistinctSharded(t *testing.T) {
	rows := []datalake.SongRow{
		{SongID: "SO1", Title: datalake.Str("Help!"), ArtistID: "AR1", Year: 1965},
		{SongID: "SO1", Title: datalake.Str("Help!"), ArtistID: "AR1", Year: 1965},
		{SongID: "SO1", Title: datalake.Str("Help"), ArtistID: "AR1", Year: 1965},
		{SongID: "SO2", Title: datalake.Str("Yesterday"), ArtistID: "AR1", Year: 1965},
	}
	opts := &datalake.Options{Shards: 3, NewSeen: NewSeenFunc(t.TempDir())}
	songs, err := datalake.BuildSongs(context.Background(), rows2catalog(rows), opts)
	test.ErrNil(t, err, "BuildSongs")
	titles := make([]string, len(songs))
	for i, s := range songs {
		titles[i] = s.Title.String
	}
	sort.Strings(titles)
	test.MustBe(t, []string{"Help", "Help!", "Yesterday"}, titles)
}

func rows2catalog(rows []datalake.SongRow) []datalake.CatalogRecord {
	recs := make([]datalake.CatalogRecord, len(rows))
	for i, r := range rows {
		recs[i] = datalake.CatalogRecord{SongID: r.SongID, Title: r.Title, ArtistID: r.ArtistID, Year: r.Year}
	}
	return recs
}
