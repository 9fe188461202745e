package datalake

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// catalogSong is the part of a catalog record the fact join needs. Title is
// only filled in under JoinArtistSong so that, under JoinArtist, a song_id
// carrying two spellings of its title still joins once.
type catalogSong struct {
	SongID     string
	ArtistID   string
	ArtistName NullString
	Title      NullString
}

func (c catalogSong) Key() string {
	var k keyBuf
	k.str(c.SongID)
	k.str(c.ArtistID)
	k.nstr(c.ArtistName)
	k.nstr(c.Title)
	return k.String()
}

type joinKey struct {
	artist string
	song   string
}

// songIndex is the build side of the hash join, keyed by artist name (and
// title under JoinArtistSong). It is read-only once built and shared by every
// probing shard.
type songIndex struct {
	policy JoinPolicy
	songs  map[joinKey][]catalogSong
}

func newSongIndex(ctx context.Context, catalog []CatalogRecord, opts *Options) (*songIndex, error) {
	policy := opts.join()
	rows := make([]catalogSong, len(catalog))
	for i, c := range catalog {
		rows[i] = catalogSong{
			SongID:     c.SongID,
			ArtistID:   c.ArtistID,
			ArtistName: c.ArtistName,
		}
		if policy == JoinArtistSong {
			rows[i].Title = c.Title
		}
	}
	distinct, err := DistinctSharded(ctx, "catalog-songs", rows, opts)
	if err != nil {
		return nil, errors.Wrap(err, "deduplicating catalog songs")
	}
	idx := &songIndex{
		policy: policy,
		songs:  make(map[joinKey][]catalogSong),
	}
	for _, s := range distinct {
		// A null name, or a null title under JoinArtistSong, never matches.
		if !s.ArtistName.Valid || (policy == JoinArtistSong && !s.Title.Valid) {
			continue
		}
		k := joinKey{artist: s.ArtistName.String, song: s.Title.String}
		idx.songs[k] = append(idx.songs[k], s)
	}
	return idx, nil
}

// lookup returns the catalog songs e joins with. A null artist (or, under
// JoinArtistSong, a null song) never matches, as in SQL.
func (idx *songIndex) lookup(e ActivityEvent) []catalogSong {
	if !e.Artist.Valid {
		return nil
	}
	k := joinKey{artist: e.Artist.String}
	if idx.policy == JoinArtistSong {
		if !e.Song.Valid {
			return nil
		}
		k.song = e.Song.String
	}
	return idx.songs[k]
}

// joinedPlay is one (event, matched catalog song) pair.
type joinedPlay struct {
	event ActivityEvent
	song  catalogSong
}

func (j joinedPlay) Key() string {
	return j.event.Key() + j.song.Key()
}

// BuildSongplays joins play events with the catalog on artist name and
// returns one fact row per distinct (event, matched catalog song) pair.
//
// The join is an exact string comparison with no normalisation: an event
// whose artist is spelled differently from every catalog artist ("Beatles,
// The" vs "The Beatles") produces no fact row and no error. Such misses are
// counted under the "songplays.join_miss" stat.
//
// Events are probed in opts.Shards chunks, the joined pairs are shuffled by
// their full tuple into opts.Shards buckets, and each bucket deduplicates and
// numbers its rows from its own ShardRange. Ids are therefore unique across
// the whole output for any shard count, but not contiguous.
func BuildSongplays(ctx context.Context, plays []ActivityEvent, catalog []CatalogRecord, opts *Options) ([]Songplay, error) {
	idx, err := newSongIndex(ctx, catalog, opts)
	if err != nil {
		return nil, errors.Wrap(err, "building song index")
	}

	chunks := Split(plays, opts.shards())
	joined := make([][]joinedPlay, len(chunks))
	var misses int64
	eg, gctx := errgroup.WithContext(ctx)
	for i := range chunks {
		i := i
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var miss int64
			for _, e := range chunks[i] {
				matches := idx.lookup(e)
				if len(matches) == 0 {
					miss++
					continue
				}
				for _, s := range matches {
					joined[i] = append(joined[i], joinedPlay{event: e, song: s})
				}
			}
			atomic.AddInt64(&misses, miss)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, errors.Wrap(err, "probing song index")
	}

	buckets, err := distinctShards(ctx, "songplays", flatten(joined), opts)
	if err != nil {
		return nil, errors.Wrap(err, "deduplicating joined plays")
	}

	facts := make([][]Songplay, len(buckets))
	eg, gctx = errgroup.WithContext(ctx)
	for i := range buckets {
		i := i
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := ShardRange(i)
			if err != nil {
				return errors.Wrap(err, "getting shard range")
			}
			nexter, err := NewRangeNexter(r)
			if err != nil {
				return errors.Wrap(err, "getting range nexter")
			}
			facts[i] = make([]Songplay, 0, len(buckets[i]))
			for _, j := range buckets[i] {
				id, err := nexter.Next()
				if err != nil {
					return errors.Wrapf(err, "assigning songplay id in shard %d", i)
				}
				cal := EpochMsToCalendar(j.event.Ts)
				facts[i] = append(facts[i], Songplay{
					SongplayID: id,
					StartTime:  cal.StartTime,
					UserID:     j.event.UserID,
					Level:      j.event.Level,
					SessionID:  j.event.SessionID,
					Location:   j.event.Location,
					UserAgent:  j.event.UserAgent,
					SongID:     j.song.SongID,
					ArtistID:   j.song.ArtistID,
					Year:       cal.Year,
					Month:      cal.Month,
				})
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	songplays := flatten(facts)
	opts.stats().Count("songplays.join_miss", misses, 1)
	opts.stats().Count("songplays.rows", int64(len(songplays)), 1)
	opts.log().Debugf("songplays: %d plays, %d join misses, %d facts", len(plays), misses, len(songplays))
	return songplays, nil
}
