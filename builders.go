package datalake

import (
	"context"

	"github.com/pkg/errors"
)

// PlayPage is the page value of an event that represents a track being
// played.
const PlayPage = "NextSong"

// FilterPlays returns the events whose page is exactly PlayPage.
func FilterPlays(events []ActivityEvent) []ActivityEvent {
	plays := make([]ActivityEvent, 0, len(events))
	for _, e := range events {
		if e.Page == PlayPage {
			plays = append(plays, e)
		}
	}
	return plays
}

// BuildSongs projects the song attributes of the catalog and removes
// duplicate tuples. Records sharing a song_id but differing in any other
// attribute are all kept.
func BuildSongs(ctx context.Context, catalog []CatalogRecord, opts *Options) ([]SongRow, error) {
	rows := make([]SongRow, len(catalog))
	for i, c := range catalog {
		rows[i] = SongRow{
			SongID:   c.SongID,
			Title:    c.Title,
			ArtistID: c.ArtistID,
			Year:     c.Year,
			Duration: c.Duration,
		}
	}
	songs, err := DistinctSharded(ctx, "songs", rows, opts)
	if err != nil {
		return nil, errors.Wrap(err, "building songs")
	}
	opts.stats().Count("songs.rows", int64(len(songs)), 1)
	return songs, nil
}

// BuildArtists projects the artist attributes of the catalog and removes
// duplicate tuples.
func BuildArtists(ctx context.Context, catalog []CatalogRecord, opts *Options) ([]ArtistRow, error) {
	rows := make([]ArtistRow, len(catalog))
	for i, c := range catalog {
		rows[i] = ArtistRow{
			ArtistID:        c.ArtistID,
			ArtistName:      c.ArtistName,
			ArtistLocation:  c.ArtistLocation,
			ArtistLatitude:  c.ArtistLatitude,
			ArtistLongitude: c.ArtistLongitude,
		}
	}
	artists, err := DistinctSharded(ctx, "artist", rows, opts)
	if err != nil {
		return nil, errors.Wrap(err, "building artists")
	}
	opts.stats().Count("artist.rows", int64(len(artists)), 1)
	return artists, nil
}

// BuildUsers projects user attributes from play events. Under
// UsersFullTuple a user whose level changed between events yields one row per
// level; under UsersLatestLevel each userId yields the row of its latest
// event.
func BuildUsers(ctx context.Context, plays []ActivityEvent, opts *Options) ([]UserRow, error) {
	var (
		users []UserRow
		err   error
	)
	switch policy := opts.users(); policy {
	case UsersFullTuple:
		rows := make([]UserRow, len(plays))
		for i, e := range plays {
			rows[i] = userOf(e)
		}
		users, err = DistinctSharded(ctx, "users", rows, opts)
	case UsersLatestLevel:
		users = latestUsers(plays)
	default:
		return nil, errors.Errorf("unknown user policy %q", policy)
	}
	if err != nil {
		return nil, errors.Wrap(err, "building users")
	}
	opts.stats().Count("users.rows", int64(len(users)), 1)
	return users, nil
}

func userOf(e ActivityEvent) UserRow {
	return UserRow{
		FirstName: e.FirstName,
		LastName:  e.LastName,
		Gender:    e.Gender,
		Level:     e.Level,
		UserID:    e.UserID,
	}
}

// latestUsers keeps, per userId, the row of the event with the greatest ts.
// Ties go to the greater level, then the greater key, so the choice does not
// depend on input order.
func latestUsers(plays []ActivityEvent) []UserRow {
	type latest struct {
		ts  int64
		row UserRow
	}
	byID := make(map[UserID]latest)
	order := make([]UserID, 0)
	for _, e := range plays {
		cand := latest{ts: e.Ts, row: userOf(e)}
		cur, ok := byID[e.UserID]
		if !ok {
			order = append(order, e.UserID)
			byID[e.UserID] = cand
			continue
		}
		if newer(cand.ts, cand.row, cur.ts, cur.row) {
			byID[e.UserID] = cand
		}
	}
	users := make([]UserRow, len(order))
	for i, id := range order {
		users[i] = byID[id].row
	}
	return users
}

func newer(ts int64, row UserRow, curTs int64, cur UserRow) bool {
	if ts != curTs {
		return ts > curTs
	}
	if row.Level != cur.Level {
		return row.Level > cur.Level
	}
	return row.Key() > cur.Key()
}

// BuildTimes derives the calendar attributes of every play event and removes
// duplicate tuples.
func BuildTimes(ctx context.Context, plays []ActivityEvent, opts *Options) ([]TimeRow, error) {
	rows := make([]TimeRow, len(plays))
	for i, e := range plays {
		rows[i] = EpochMsToCalendar(e.Ts)
	}
	times, err := DistinctSharded(ctx, "time", rows, opts)
	if err != nil {
		return nil, errors.Wrap(err, "building time")
	}
	opts.stats().Count("time.rows", int64(len(times)), 1)
	return times, nil
}
