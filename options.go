package datalake

import (
	"github.com/pkg/errors"
)

// UserPolicy decides how BuildUsers collapses users seen in several events.
type UserPolicy string

const (
	// UsersFullTuple keeps one row per distinct (firstName, lastName, gender,
	// level, userId). A user who changed level has one row per level.
	UsersFullTuple UserPolicy = "full-tuple"
	// UsersLatestLevel keeps one row per userId, taken from that user's most
	// recent event.
	UsersLatestLevel UserPolicy = "latest-level"
)

// ParseUserPolicy validates s. The empty string means UsersFullTuple.
func ParseUserPolicy(s string) (UserPolicy, error) {
	switch UserPolicy(s) {
	case "", UsersFullTuple:
		return UsersFullTuple, nil
	case UsersLatestLevel:
		return UsersLatestLevel, nil
	}
	return "", errors.Errorf("unknown user policy %q (want %q or %q)", s, UsersFullTuple, UsersLatestLevel)
}

// JoinPolicy decides which catalog rows an event joins with in
// BuildSongplays.
type JoinPolicy string

const (
	// JoinArtist matches an event with every catalog row whose artist name is
	// byte-for-byte equal to the event's artist.
	JoinArtist JoinPolicy = "artist"
	// JoinArtistSong additionally requires the song title to be equal.
	JoinArtistSong JoinPolicy = "artist-song"
)

// ParseJoinPolicy validates s. The empty string means JoinArtist.
func ParseJoinPolicy(s string) (JoinPolicy, error) {
	switch JoinPolicy(s) {
	case "", JoinArtist:
		return JoinArtist, nil
	case JoinArtistSong:
		return JoinArtistSong, nil
	}
	return "", errors.Errorf("unknown join policy %q (want %q or %q)", s, JoinArtist, JoinArtistSong)
}

// Options tune the builders. A nil *Options is valid and means one shard,
// in-memory dedup, full-tuple users, artist-name join, no stats and no logs.
type Options struct {
	// Shards is the number of partitions each sharded stage runs on.
	Shards int
	// NewSeen creates the dedup set for one shard. Nil means MapSeen.
	NewSeen SeenFunc

	Users UserPolicy
	Join  JoinPolicy

	Stats Statter
	Log   Logger
}

func (o *Options) shards() int {
	if o == nil || o.Shards < 1 {
		return 1
	}
	return o.Shards
}

func (o *Options) newSeen(name string) (Seen, error) {
	if o == nil || o.NewSeen == nil {
		return NewMapSeen(name)
	}
	return o.NewSeen(name)
}

func (o *Options) users() UserPolicy {
	if o == nil || o.Users == "" {
		return UsersFullTuple
	}
	return o.Users
}

func (o *Options) join() JoinPolicy {
	if o == nil || o.Join == "" {
		return JoinArtist
	}
	return o.Join
}

func (o *Options) stats() Statter {
	if o == nil || o.Stats == nil {
		return NopStatter{}
	}
	return o.Stats
}

func (o *Options) log() Logger {
	if o == nil || o.Log == nil {
		return NopLogger{}
	}
	return o.Log
}
