package file

import (
	"io"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/sparkify/datalake/test"
)

func drain(t *testing.T, rs *RawSource) (names []string, contents []string) {
	t.Helper()
	for {
		r, err := rs.NextReader()
		if err == io.EOF {
			return names, contents
		}
		test.ErrNil(t, err, "NextReader")
		b, err := io.ReadAll(r)
		test.ErrNil(t, err, "reading "+r.Name())
		test.ErrNil(t, r.Close(), "closing "+r.Name())
		names = append(names, r.Name())
		contents = append(contents, string(b))
	}
}

func TestRawSourceGlob(t *testing.T) {
	d := t.TempDir()
	test.WriteFiles(t, d, map[string]string{
		"song_data/A/B/C/TRABCEI.json": `{"song_id": "SO1"}`,
		"song_data/A/B/D/TRABDEF.json": `{"song_id": "SO2"}`,
		"song_data/A/B/notes.txt":      `not a song`,
		"log_data/2018-11-01-events.json": `{"ts": 1}`,
	})

	rs, err := NewRawSource(filepath.Join(d, "song_data", "*", "*", "*", "*.json"))
	test.ErrNil(t, err, "NewRawSource")
	test.MustBe(t, 2, rs.Len())
	names, contents := drain(t, rs)
	test.MustBe(t, []string{
		filepath.Join(d, "song_data", "A", "B", "C", "TRABCEI.json"),
		filepath.Join(d, "song_data", "A", "B", "D", "TRABDEF.json"),
	}, names)
	test.MustBe(t, []string{`{"song_id": "SO1"}`, `{"song_id": "SO2"}`}, contents)

	// Once drained, the source stays at EOF.
	if _, err := rs.NextReader(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestRawSourceDirectory(t *testing.T) {
	d := t.TempDir()
	test.WriteFiles(t, d, map[string]string{
		"a.json":       "a",
		"sub/b.json":   "b",
		"sub/c/d.json": "d",
	})
	rs, err := NewRawSource(d)
	test.ErrNil(t, err, "NewRawSource")
	_, contents := drain(t, rs)
	sort.Strings(contents)
	test.MustBe(t, []string{"a", "b", "d"}, contents)
}

func TestRawSourceNoMatch(t *testing.T) {
	_, err := NewRawSource(filepath.Join(t.TempDir(), "*.json"))
	if err == nil || !strings.Contains(err.Error(), "no files match") {
		t.Fatalf("expected no match error, got %v", err)
	}
}

func TestRawSourceSplit(t *testing.T) {
	d := t.TempDir()
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, `{"ts": 1541207953796, "page": "NextSong", "userId": "26"}`)
	}
	big := strings.Join(lines, "\n") + "\n"
	test.WriteFiles(t, d, map[string]string{
		"big-events.json":   big,
		"small-events.json": "{}\n",
	})

	rs, err := NewRawSource(filepath.Join(d, "*-events.json"), OptSrcSplit(4, 1024))
	test.ErrNil(t, err, "NewRawSource")
	if rs.Len() < 3 {
		t.Fatalf("expected the big file to be split, got %d readers", rs.Len())
	}
	names, contents := drain(t, rs)

	var joined strings.Builder
	for i, c := range contents {
		if !strings.HasPrefix(names[i], filepath.Join(d, "big-events.json")) {
			test.MustBe(t, "{}\n", c, "small file is not split")
			continue
		}
		if !strings.HasSuffix(c, "\n") {
			t.Fatalf("fragment %s does not end on a line break", names[i])
		}
		joined.WriteString(c)
	}
	test.MustBe(t, big, joined.String(), "fragments cover the file")

	if _, err := NewRawSource(d, OptSrcSplit(0, 0)); err == nil {
		t.Fatal("expected error for zero split parts")
	}
}
