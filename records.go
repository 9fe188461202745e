package datalake

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// NullString is a string which may be JSON null. It is a plain value so rows
// holding it remain comparable.
type NullString struct {
	String string
	Valid  bool
}

// Str returns a valid NullString.
func Str(s string) NullString { return NullString{String: s, Valid: true} }

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*n = NullString{}
		return nil
	}
	if err := json.Unmarshal(b, &n.String); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n NullString) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.String)
}

func (n NullString) value() interface{} {
	if !n.Valid {
		return nil
	}
	return n.String
}

// NullFloat64 is a float64 which may be JSON null.
type NullFloat64 struct {
	Float64 float64
	Valid   bool
}

// Float returns a valid NullFloat64.
func Float(f float64) NullFloat64 { return NullFloat64{Float64: f, Valid: true} }

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullFloat64) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*n = NullFloat64{}
		return nil
	}
	if err := json.Unmarshal(b, &n.Float64); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n NullFloat64) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

func (n NullFloat64) value() interface{} {
	if !n.Valid {
		return nil
	}
	return n.Float64
}

// UserID is the activity log user identifier. Logs carry it as a JSON string
// ("39", or "" for logged out sessions) but numeric ids are accepted too and
// kept in their literal form.
type UserID string

// UnmarshalJSON implements json.Unmarshaler.
func (u *UserID) UnmarshalJSON(b []byte) error {
	switch {
	case bytes.Equal(b, []byte("null")):
		*u = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*u = UserID(s)
	default:
		if _, err := strconv.ParseFloat(string(b), 64); err != nil {
			return errors.Errorf("userId must be a string or a number, got %s", b)
		}
		*u = UserID(b)
	}
	return nil
}

// CatalogRecord is one song catalog file: a song and the artist who recorded
// it. Year 0 means unknown.
type CatalogRecord struct {
	SongID          string      `json:"song_id"`
	Title           NullString  `json:"title"`
	ArtistID        string      `json:"artist_id"`
	ArtistName      NullString  `json:"artist_name"`
	ArtistLocation  NullString  `json:"artist_location"`
	ArtistLatitude  NullFloat64 `json:"artist_latitude"`
	ArtistLongitude NullFloat64 `json:"artist_longitude"`
	Year            int64       `json:"year"`
	Duration        float64     `json:"duration"`
}

// Key implements Keyer over the whole record.
func (c CatalogRecord) Key() string {
	var k keyBuf
	k.str(c.SongID)
	k.nstr(c.Title)
	k.str(c.ArtistID)
	k.nstr(c.ArtistName)
	k.nstr(c.ArtistLocation)
	k.nf64(c.ArtistLatitude)
	k.nf64(c.ArtistLongitude)
	k.i64(c.Year)
	k.f64(c.Duration)
	return k.String()
}

// ActivityEvent is one line of the activity log. Duration is the JSON
// "length" attribute: the length of the track being played.
type ActivityEvent struct {
	Ts            int64       `json:"ts"`
	Page          string      `json:"page"`
	FirstName     NullString  `json:"firstName"`
	LastName      NullString  `json:"lastName"`
	Gender        NullString  `json:"gender"`
	Level         string      `json:"level"`
	UserID        UserID      `json:"userId"`
	SessionID     int64       `json:"sessionId"`
	Location      NullString  `json:"location"`
	UserAgent     NullString  `json:"userAgent"`
	Artist        NullString  `json:"artist"`
	Song          NullString  `json:"song"`
	Duration      NullFloat64 `json:"length"`
	Auth          string      `json:"auth"`
	ItemInSession int64       `json:"itemInSession"`
	Method        string      `json:"method"`
	Status        int64       `json:"status"`
	Registration  NullFloat64 `json:"registration"`
}

// Key implements Keyer over the whole event, so Distinct removes only exact
// duplicates.
func (e ActivityEvent) Key() string {
	var k keyBuf
	k.i64(e.Ts)
	k.str(e.Page)
	k.nstr(e.FirstName)
	k.nstr(e.LastName)
	k.nstr(e.Gender)
	k.str(e.Level)
	k.str(string(e.UserID))
	k.i64(e.SessionID)
	k.nstr(e.Location)
	k.nstr(e.UserAgent)
	k.nstr(e.Artist)
	k.nstr(e.Song)
	k.nf64(e.Duration)
	k.str(e.Auth)
	k.i64(e.ItemInSession)
	k.str(e.Method)
	k.i64(e.Status)
	k.nf64(e.Registration)
	return k.String()
}

// SongRow is a row of the songs dimension.
type SongRow struct {
	SongID   string
	Title    NullString
	ArtistID string
	Year     int64
	Duration float64
}

func (s SongRow) Key() string {
	var k keyBuf
	k.str(s.SongID)
	k.nstr(s.Title)
	k.str(s.ArtistID)
	k.i64(s.Year)
	k.f64(s.Duration)
	return k.String()
}

func (s SongRow) Values() []interface{} {
	return []interface{}{s.SongID, s.Title.value(), s.ArtistID, s.Year, s.Duration}
}

// ArtistRow is a row of the artist dimension. Geohash is only filled in when
// geohash enrichment is enabled.
type ArtistRow struct {
	ArtistID        string
	ArtistName      NullString
	ArtistLocation  NullString
	ArtistLatitude  NullFloat64
	ArtistLongitude NullFloat64
	Geohash         NullString
}

func (a ArtistRow) Key() string {
	var k keyBuf
	k.str(a.ArtistID)
	k.nstr(a.ArtistName)
	k.nstr(a.ArtistLocation)
	k.nf64(a.ArtistLatitude)
	k.nf64(a.ArtistLongitude)
	k.nstr(a.Geohash)
	return k.String()
}

func (a ArtistRow) Values() []interface{} {
	return []interface{}{a.ArtistID, a.ArtistName.value(), a.ArtistLocation.value(), a.ArtistLatitude.value(), a.ArtistLongitude.value(), a.Geohash.value()}
}

// UserRow is a row of the users dimension.
type UserRow struct {
	FirstName NullString
	LastName  NullString
	Gender    NullString
	Level     string
	UserID    UserID
}

func (u UserRow) Key() string {
	var k keyBuf
	k.nstr(u.FirstName)
	k.nstr(u.LastName)
	k.nstr(u.Gender)
	k.str(u.Level)
	k.str(string(u.UserID))
	return k.String()
}

func (u UserRow) Values() []interface{} {
	return []interface{}{u.FirstName.value(), u.LastName.value(), u.Gender.value(), u.Level, string(u.UserID)}
}

// TimeRow is a row of the time dimension. See EpochMsToCalendar for the
// calendar conventions.
type TimeRow struct {
	StartTime time.Time
	Hour      int
	Day       int
	Week      int
	Month     int
	Year      int
	Weekday   int
}

func (t TimeRow) Key() string {
	var k keyBuf
	k.i64(t.StartTime.UnixNano())
	k.i64(int64(t.Hour))
	k.i64(int64(t.Day))
	k.i64(int64(t.Week))
	k.i64(int64(t.Month))
	k.i64(int64(t.Year))
	k.i64(int64(t.Weekday))
	return k.String()
}

func (t TimeRow) Values() []interface{} {
	return []interface{}{t.StartTime, t.Hour, t.Day, t.Week, t.Month, t.Year, t.Weekday}
}

// Songplay is a row of the songplays fact table.
type Songplay struct {
	SongplayID uint64
	StartTime  time.Time
	UserID     UserID
	Level      string
	SessionID  int64
	Location   NullString
	UserAgent  NullString
	SongID     string
	ArtistID   string
	Year       int
	Month      int
}

func (s Songplay) Values() []interface{} {
	return []interface{}{s.SongplayID, s.StartTime, string(s.UserID), s.Level, s.SessionID, s.Location.value(), s.UserAgent.value(), s.SongID, s.ArtistID, s.Year, s.Month}
}

// keyBuf builds an unambiguous string encoding of a tuple. Strings are length
// prefixed and nulls have their own marker, so distinct tuples never share a
// key.
type keyBuf struct {
	strings.Builder
}

func (k *keyBuf) str(s string) {
	k.WriteString(strconv.Itoa(len(s)))
	k.WriteByte(':')
	k.WriteString(s)
	k.WriteByte('|')
}

func (k *keyBuf) nstr(s NullString) {
	if !s.Valid {
		k.WriteString("~|")
		return
	}
	k.str(s.String)
}

func (k *keyBuf) i64(i int64) {
	k.WriteString(strconv.FormatInt(i, 10))
	k.WriteByte('|')
}

// f64 writes -0 as 0, since the two compare equal.
func (k *keyBuf) f64(f float64) {
	if f == 0 {
		f = 0
	}
	k.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	k.WriteByte('|')
}

func (k *keyBuf) nf64(f NullFloat64) {
	if !f.Valid {
		k.WriteString("~|")
		return
	}
	k.f64(f.Float64)
}
