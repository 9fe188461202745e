package json

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/sparkify/datalake"
	"github.com/sparkify/datalake/test"
)

type namedReader struct {
	io.Reader
	name string
}

func (n namedReader) Name() string { return n.name }
func (n namedReader) Close() error { return nil }

// sliceSource hands out one in-memory object per entry of docs.
type sliceSource struct {
	mu   sync.Mutex
	docs []string
	i    int
}

func (s *sliceSource) NextReader() (datalake.NamedReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.i >= len(s.docs) {
		return nil, io.EOF
	}
	s.i++
	return namedReader{Reader: strings.NewReader(s.docs[s.i-1]), name: "doc" + string(rune('0'+s.i-1))}, nil
}

func TestReadCatalog(t *testing.T) {
	rs := &sliceSource{docs: []string{
		`{"num_songs": 1, "artist_id": "ARJIE2Y1187B994AB7", "artist_latitude": null, "artist_longitude": null, "artist_location": "", "artist_name": "Line Renaud", "song_id": "SOUPIRU12A6D4FA1E1", "title": "Der Kleine Dompfaff", "duration": 152.92036, "year": 0}`,
		`{"artist_id": "AR8ZCNI1187B9A069B", "artist_latitude": 35.14968, "artist_longitude": -90.04892, "artist_location": "Memphis, TN", "artist_name": "Planet P Project", "song_id": "SOIAZJW12AB01853F1", "title": "Pink World", "duration": 269.81832, "year": 1984}` + "\n",
	}}
	recs, err := ReadCatalog(context.Background(), rs, 2)
	test.ErrNil(t, err, "ReadCatalog")
	test.MustBe(t, 2, len(recs))
	sort.Slice(recs, func(i, j int) bool { return recs[i].Year < recs[j].Year })
	test.MustBe(t, datalake.CatalogRecord{
		SongID:          "SOIAZJW12AB01853F1",
		Title:           datalake.Str("Pink World"),
		ArtistID:        "AR8ZCNI1187B9A069B",
		ArtistName:      datalake.Str("Planet P Project"),
		ArtistLocation:  datalake.Str("Memphis, TN"),
		ArtistLatitude:  datalake.Float(35.14968),
		ArtistLongitude: datalake.Float(-90.04892),
		Year:            1984,
		Duration:        269.81832,
	}, recs[1])
	test.MustBe(t, datalake.NullFloat64{}, recs[0].ArtistLatitude)
}

func TestReadCatalogMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "empty", doc: ""},
		{name: "two objects", doc: `{"song_id": "SO1", "artist_id": "AR1"} {"song_id": "SO2", "artist_id": "AR1"}`},
		{name: "missing song_id", doc: `{"artist_id": "AR1", "title": "x"}`},
		{name: "null artist_id", doc: `{"song_id": "SO1", "artist_id": null}`},
		{name: "wrong type", doc: `{"song_id": "SO1", "artist_id": "AR1", "year": "nineteen"}`},
		{name: "truncated", doc: `{"song_id": "SO1", "artist_id": "AR`},
		{name: "not an object", doc: `["SO1"]`},
	}
	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			good := `{"song_id": "SO0", "artist_id": "AR0"}`
			_, err := ReadCatalog(context.Background(), &sliceSource{docs: []string{good, tst.doc}}, 1)
			var mie *datalake.MalformedInputError
			if !errors.As(err, &mie) {
				t.Fatalf("expected MalformedInputError, got %v", err)
			}
			test.MustBe(t, "doc1", mie.Source)
			test.MustBe(t, 0, mie.Line)
		})
	}
}

const logSegment = `{"artist":null,"auth":"Logged In","firstName":"Walter","gender":"M","itemInSession":0,"lastName":"Frye","length":null,"level":"free","location":"San Francisco-Oakland-Hayward, CA","method":"GET","page":"Home","registration":1540919166796.0,"sessionId":38,"song":null,"status":200,"ts":1541105830796,"userAgent":"Mozilla/5.0","userId":"39"}
{"artist":"Des'ree","auth":"Logged In","firstName":"Kaylee","gender":"F","itemInSession":1,"lastName":"Summers","length":246.30812,"level":"free","location":"Phoenix-Mesa-Scottsdale, AZ","method":"PUT","page":"NextSong","registration":1540344794796.0,"sessionId":139,"song":"You Gotta Be","status":200,"ts":1541106106796,"userAgent":"Mozilla/5.0","userId":"8"}

{"artist":"Des'ree","auth":"Logged In","firstName":"Kaylee","gender":"F","itemInSession":1,"lastName":"Summers","length":246.30812,"level":"free","location":"Phoenix-Mesa-Scottsdale, AZ","method":"PUT","page":"NextSong","registration":1540344794796.0,"sessionId":139,"song":"You Gotta Be","status":200,"ts":1541106106796,"userAgent":"Mozilla/5.0","userId":"8"}
`

func TestReadEvents(t *testing.T) {
	events, err := ReadEvents(context.Background(), &sliceSource{docs: []string{logSegment}}, 4)
	test.ErrNil(t, err, "ReadEvents")
	test.MustBe(t, 3, len(events), "duplicates are kept by the reader")
	test.MustBe(t, "Home", events[0].Page)
	test.MustBe(t, datalake.Str("Des'ree"), events[1].Artist)
	test.MustBe(t, datalake.Float(246.30812), events[1].Duration)
	test.MustBe(t, datalake.UserID("8"), events[1].UserID)

	seen, _ := datalake.NewMapSeen("events")
	distinct, err := datalake.Distinct(events, seen)
	test.ErrNil(t, err, "Distinct")
	test.MustBe(t, 2, len(distinct))
}

func TestReadEventsMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "missing ts", line: `{"page": "NextSong", "userId": "8"}`},
		{name: "missing page", line: `{"ts": 1541106106796}`},
		{name: "ts wrong type", line: `{"ts": "yesterday", "page": "NextSong"}`},
		{name: "userId bool", line: `{"ts": 1, "page": "NextSong", "userId": true}`},
		{name: "garbage", line: `not json`},
	}
	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			doc := `{"ts": 1, "page": "Home"}` + "\n" + tst.line + "\n"
			_, err := ReadEvents(context.Background(), &sliceSource{docs: []string{doc}}, 1)
			var mie *datalake.MalformedInputError
			if !errors.As(err, &mie) {
				t.Fatalf("expected MalformedInputError, got %v", err)
			}
			test.MustBe(t, "doc0", mie.Source)
			test.MustBe(t, 2, mie.Line)
		})
	}
}

func TestReadEventsNumericUserID(t *testing.T) {
	doc := `{"ts": 1, "page": "NextSong", "userId": 26}`
	events, err := ReadEvents(context.Background(), &sliceSource{docs: []string{doc}}, 1)
	test.ErrNil(t, err, "ReadEvents")
	test.MustBe(t, datalake.UserID("26"), events[0].UserID)
}

func TestReadCatalogNullNames(t *testing.T) {
	rs := &sliceSource{docs: []string{
		`{"artist_id": "AR1", "artist_name": null, "song_id": "SO1", "title": null, "duration": 200.1, "year": 0}`,
	}}
	recs, err := ReadCatalog(context.Background(), rs, 1)
	test.ErrNil(t, err, "ReadCatalog")
	test.MustBe(t, 1, len(recs))
	test.MustBe(t, datalake.NullString{}, recs[0].ArtistName, "artist_name")
	test.MustBe(t, datalake.NullString{}, recs[0].Title, "title")

	events, err := ReadEvents(context.Background(), &sliceSource{docs: []string{
		`{"ts": 1541207953796, "page": "NextSong", "artist": "", "song": "", "userId": "26", "level": "free"}`,
	}}, 1)
	test.ErrNil(t, err, "ReadEvents")
	facts, err := datalake.BuildSongplays(context.Background(), events, recs, nil)
	test.ErrNil(t, err, "BuildSongplays")
	test.MustBe(t, 0, len(facts), "a null catalog artist joins nothing")
}
