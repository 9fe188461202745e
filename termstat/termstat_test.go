package termstat

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestCollector(t *testing.T) {
	buf := &bytes.Buffer{}
	c := NewCollector(buf, time.Hour)
	c.Count("songs.rows", 3, 1)
	c.Count("songs.rows", 4, 1)
	c.Count("songplays.join_miss", 2, 1)
	c.Gauge("run.seconds", 1.5, 1)
	c.Stop()

	out := buf.String()
	for _, want := range []string{"songs.rows: 7 ", "songplays.join_miss: 2 ", "run.seconds: 1.5 "} {
		if !strings.Contains(out, want) {
			t.Fatalf("%q not in output %q", want, out)
		}
	}
	if !strings.HasSuffix(out, "\n") {
		t.Fatalf("final write should end the line: %q", out)
	}
}
