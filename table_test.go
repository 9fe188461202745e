package datalake_test

import (
	"testing"

	"github.com/sparkify/datalake"
	"github.com/sparkify/datalake/test"
)

func TestTableValidate(t *testing.T) {
	songs := datalake.NewSongsTable([]datalake.SongRow{{SongID: "SO1", ArtistID: "AR1"}})
	test.ErrNil(t, songs.Validate(), "songs")
	test.MustBe(t, []string{"year", "artist_id"}, songs.PartitionBy)

	plays := datalake.NewSongplaysTable([]datalake.Songplay{{SongplayID: 1}})
	test.ErrNil(t, plays.Validate(), "songplays")
	test.MustBe(t, []string{"year", "month"}, plays.PartitionBy)

	users := datalake.NewUsersTable(nil)
	test.ErrNil(t, users.Validate(), "users")
	test.MustBe(t, 0, len(users.PartitionBy))

	bad := datalake.NewTimeTable(nil)
	bad.PartitionBy = []string{"year", "quarter"}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for unknown partition column")
	}

	short := &datalake.Table{Name: "x", Columns: []datalake.Column{{Name: "a", Type: "VARCHAR"}}, Rows: []datalake.Row{datalake.SongRow{}}}
	if err := short.Validate(); err == nil {
		t.Fatal("expected error for row width mismatch")
	}
}

func TestNewArtistTableGeohash(t *testing.T) {
	artists := []datalake.ArtistRow{{ArtistID: "AR1", ArtistName: datalake.Str("Casual"), Geohash: datalake.Str("9q5c")}}

	plain := datalake.NewArtistTable(artists, false)
	test.ErrNil(t, plain.Validate(), "plain")
	test.MustBe(t, 5, len(plain.Columns))
	test.MustBe(t, 5, len(plain.Rows[0].Values()))

	geo := datalake.NewArtistTable(artists, true)
	test.ErrNil(t, geo.Validate(), "geohash")
	test.MustBe(t, "artist_geohash", geo.Columns[5].Name)
	test.MustBe(t, "9q5c", geo.Rows[0].Values()[5])
}
