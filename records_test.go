package datalake_test

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/sparkify/datalake"
	"github.com/sparkify/datalake/test"
)

func TestActivityEventUnmarshal(t *testing.T) {
	line := `{"artist":null,"auth":"Logged In","firstName":"Walter","gender":"M","itemInSession":0,"lastName":"Frye","length":null,"level":"free","location":"San Francisco-Oakland-Hayward, CA","method":"GET","page":"Home","registration":1540919166796.0,"sessionId":38,"song":null,"status":200,"ts":1541105830796,"userAgent":"Mozilla/5.0","userId":"39"}`
	var e datalake.ActivityEvent
	test.ErrNil(t, json.Unmarshal([]byte(line), &e), "unmarshalling event")

	test.MustBe(t, int64(1541105830796), e.Ts, "ts")
	test.MustBe(t, "Home", e.Page, "page")
	test.MustBe(t, datalake.UserID("39"), e.UserID, "userId")
	test.MustBe(t, datalake.NullString{}, e.Artist, "null artist")
	test.MustBe(t, datalake.NullFloat64{}, e.Duration, "null length")
	test.MustBe(t, datalake.Float(1540919166796.0), e.Registration, "registration")
	test.MustBe(t, datalake.Str("Walter"), e.FirstName, "firstName")
}

func TestUserIDUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		exp     datalake.UserID
		wantErr bool
	}{
		{in: `"39"`, exp: "39"},
		{in: `""`, exp: ""},
		{in: `null`, exp: ""},
		{in: `26`, exp: "26"},
		{in: `true`, wantErr: true},
	}
	for _, tst := range tests {
		t.Run(tst.in, func(t *testing.T) {
			var u datalake.UserID
			err := json.Unmarshal([]byte(tst.in), &u)
			if tst.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s", tst.in)
				}
				return
			}
			test.ErrNil(t, err, "unmarshalling")
			test.MustBe(t, tst.exp, u)
		})
	}
}

func TestCatalogRecordUnmarshal(t *testing.T) {
	doc := `{"num_songs": 1, "artist_id": "ARD7TVE1187B99BFB1", "artist_latitude": null, "artist_longitude": null, "artist_location": "California - LA", "artist_name": "Casual", "song_id": "SOMZWCG12A8C13C480", "title": "I Didn't Mean To", "duration": 218.93179, "year": 0}`
	var c datalake.CatalogRecord
	test.ErrNil(t, json.Unmarshal([]byte(doc), &c), "unmarshalling catalog record")
	test.MustBe(t, datalake.CatalogRecord{
		SongID:         "SOMZWCG12A8C13C480",
		Title:          datalake.Str("I Didn't Mean To"),
		ArtistID:       "ARD7TVE1187B99BFB1",
		ArtistName:     datalake.Str("Casual"),
		ArtistLocation: datalake.Str("California - LA"),
		Year:           0,
		Duration:       218.93179,
	}, c)
}

func TestKeysDistinguishNullFromEmpty(t *testing.T) {
	a := datalake.UserRow{FirstName: datalake.Str(""), Level: "free", UserID: "1"}
	b := datalake.UserRow{Level: "free", UserID: "1"}
	if a.Key() == b.Key() {
		t.Fatalf("null and empty first names share key %q", a.Key())
	}
	// A separator inside a value must not let two tuples collide.
	c := datalake.SongRow{SongID: "a|1:b", Title: datalake.Str("c")}
	d := datalake.SongRow{SongID: "a", Title: datalake.Str("b|1:c")}
	if c.Key() == d.Key() {
		t.Fatalf("tuples share key %q", c.Key())
	}
}

func TestRowValuesNulls(t *testing.T) {
	a := datalake.ArtistRow{ArtistID: "AR1", ArtistName: datalake.Str("Casual"), ArtistLatitude: datalake.Float(1.5)}
	test.MustBe(t, []interface{}{"AR1", "Casual", nil, 1.5, nil, nil}, a.Values())
}

func TestActivityEventRoundTrip(t *testing.T) {
	e := datalake.ActivityEvent{
		Ts:       1541207953796,
		Page:     "NextSong",
		UserID:   "26",
		Level:    "free",
		Artist:   datalake.Str("Des'ree"),
		Duration: datalake.Float(246.30812),
	}
	b, err := json.Marshal(e)
	test.ErrNil(t, err, "marshalling")
	var got datalake.ActivityEvent
	test.ErrNil(t, json.Unmarshal(b, &got), "unmarshalling")
	test.MustBe(t, e, got)
	test.MustBe(t, e.Key(), got.Key())
}
