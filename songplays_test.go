package datalake_test

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/sparkify/datalake"
	"github.com/sparkify/datalake/mock"
	"github.com/sparkify/datalake/test"
)

var beatles = []datalake.CatalogRecord{
	{SongID: "SOHELP", Title: datalake.Str("Help!"), ArtistID: "ARBEAT", ArtistName: datalake.Str("The Beatles"), Year: 1965, Duration: 138.5},
	{SongID: "SOYEST", Title: datalake.Str("Yesterday"), ArtistID: "ARBEAT", ArtistName: datalake.Str("The Beatles"), Year: 1965, Duration: 125.2},
	{SongID: "SOYEST", Title: datalake.Str("Yesterday (Remastered)"), ArtistID: "ARBEAT", ArtistName: datalake.Str("The Beatles"), Year: 1965, Duration: 125.2},
	{SongID: "SOCASU", Title: datalake.Str("I Didn't Mean To"), ArtistID: "ARCASU", ArtistName: datalake.Str("Casual"), Year: 0, Duration: 218.9},
}

func TestBuildSongplaysExactArtistMatch(t *testing.T) {
	stats := &mock.RecordingStatter{}
	plays := []datalake.ActivityEvent{
		play(1541207953796, "26", "free", "The Beatles", "Help!"),
		play(1541207960000, "26", "free", "Beatles, The", "Help!"),
	}
	facts, err := datalake.BuildSongplays(context.Background(), plays, beatles, &datalake.Options{Stats: stats})
	test.ErrNil(t, err, "BuildSongplays")

	// One matching event times the two distinct Beatles songs. The second
	// spelling of SOYEST's title does not produce a third row.
	test.MustBe(t, 2, len(facts), "facts")
	songs := []string{facts[0].SongID, facts[1].SongID}
	sort.Strings(songs)
	test.MustBe(t, []string{"SOHELP", "SOYEST"}, songs)
	for _, f := range facts {
		test.MustBe(t, "ARBEAT", f.ArtistID)
		test.MustBe(t, datalake.UserID("26"), f.UserID)
		test.MustBe(t, 2018, f.Year)
		test.MustBe(t, 11, f.Month)
	}
	test.MustBe(t, int64(1), stats.CountOf("songplays.join_miss"), "join misses")
	test.MustBe(t, int64(2), stats.CountOf("songplays.rows"), "rows stat")
}

func TestBuildSongplaysArtistSongPolicy(t *testing.T) {
	plays := []datalake.ActivityEvent{
		play(1541207953796, "26", "free", "The Beatles", "Help!"),
		play(1541207960000, "26", "free", "The Beatles", "Yesterday"),
		play(1541207970000, "26", "free", "The Beatles", "Let It Be"),
	}
	facts, err := datalake.BuildSongplays(context.Background(), plays, beatles, &datalake.Options{Join: datalake.JoinArtistSong})
	test.ErrNil(t, err, "BuildSongplays")
	test.MustBe(t, 2, len(facts), "facts")
	sort.Slice(facts, func(i, j int) bool { return facts[i].StartTime.Before(facts[j].StartTime) })
	test.MustBe(t, "SOHELP", facts[0].SongID)
	test.MustBe(t, "SOYEST", facts[1].SongID)
}

func TestBuildSongplaysNullArtistNeverMatches(t *testing.T) {
	e := play(1541207953796, "26", "free", "", "")
	e.Artist = datalake.NullString{}
	e.Song = datalake.NullString{}
	catalog := []datalake.CatalogRecord{{SongID: "SO1", ArtistID: "AR1", ArtistName: datalake.Str("")}}
	for _, policy := range []datalake.JoinPolicy{datalake.JoinArtist, datalake.JoinArtistSong} {
		facts, err := datalake.BuildSongplays(context.Background(), []datalake.ActivityEvent{e}, catalog, &datalake.Options{Join: policy})
		test.ErrNil(t, err, "BuildSongplays")
		test.MustBe(t, 0, len(facts), string(policy))
	}
}

func TestBuildSongplaysDuplicateEvents(t *testing.T) {
	e := play(1541207953796, "26", "free", "Casual", "I Didn't Mean To")
	facts, err := datalake.BuildSongplays(context.Background(), []datalake.ActivityEvent{e, e, e}, beatles, &datalake.Options{Shards: 3})
	test.ErrNil(t, err, "BuildSongplays")
	test.MustBe(t, 1, len(facts), "exact duplicates collapse")
}

func TestBuildSongplaysIDsUniqueForAnyShardCount(t *testing.T) {
	var plays []datalake.ActivityEvent
	for i := 0; i < 500; i++ {
		plays = append(plays, play(1541207953796+int64(i)*1000, datalake.UserID(fmt.Sprint(i%17)), "free", "The Beatles", "Help!"))
	}
	var want []string
	for shards := 1; shards <= 8; shards++ {
		facts, err := datalake.BuildSongplays(context.Background(), plays, beatles, &datalake.Options{Shards: shards})
		test.ErrNil(t, err, "BuildSongplays")
		test.MustBe(t, 1000, len(facts), fmt.Sprintf("shards=%d", shards))

		ids := make(map[uint64]struct{}, len(facts))
		tuples := make([]string, 0, len(facts))
		for _, f := range facts {
			if _, ok := ids[f.SongplayID]; ok {
				t.Fatalf("shards=%d: duplicate songplay_id %d", shards, f.SongplayID)
			}
			ids[f.SongplayID] = struct{}{}
			tuples = append(tuples, fmt.Sprintf("%d/%s/%s", f.StartTime.UnixMilli(), f.UserID, f.SongID))
		}
		sort.Strings(tuples)
		if want == nil {
			want = tuples
			continue
		}
		test.MustBe(t, want, tuples, fmt.Sprintf("shards=%d", shards))
	}
}

func TestBuildSongplaysNullCatalogArtistNeverMatches(t *testing.T) {
	e := play(1541207953796, "26", "free", "", "")
	catalog := []datalake.CatalogRecord{{SongID: "SO1", ArtistID: "AR1"}}
	for _, policy := range []datalake.JoinPolicy{datalake.JoinArtist, datalake.JoinArtistSong} {
		stats := &mock.RecordingStatter{}
		facts, err := datalake.BuildSongplays(context.Background(), []datalake.ActivityEvent{e}, catalog, &datalake.Options{Join: policy, Stats: stats})
		test.ErrNil(t, err, "BuildSongplays")
		test.MustBe(t, 0, len(facts), string(policy))
		test.MustBe(t, int64(1), stats.CountOf("songplays.join_miss"), string(policy))
	}

	// An empty name is a value, not a null, and joins an empty artist.
	catalog[0].ArtistName = datalake.Str("")
	catalog[0].Title = datalake.Str("")
	facts, err := datalake.BuildSongplays(context.Background(), []datalake.ActivityEvent{e}, catalog, nil)
	test.ErrNil(t, err, "BuildSongplays")
	test.MustBe(t, 1, len(facts), "empty names")
}
