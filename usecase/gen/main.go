package gen

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sparkify/datalake/fake"
)

// Main holds the options for generating a fake catalog and activity log.
type Main struct {
	Dir      string `help:"Directory to write song_data and log_data below."`
	Seed     int64  `help:"Random seed for generating data. -1 will use current nanosecond."`
	Artists  int    `help:"Number of distinct artists in the catalog."`
	Songs    int    `help:"Number of catalog files."`
	Users    int    `help:"Number of distinct users in the log."`
	Sessions int    `help:"Number of listening sessions in the log."`
	Start    string `help:"Day the first session starts on, as YYYY-MM-DD."`

	Out io.Writer `flag:"-"`
}

// NewMain returns a new Main.
func NewMain() *Main {
	return &Main{
		Dir:      "data",
		Seed:     1,
		Artists:  50,
		Songs:    200,
		Users:    20,
		Sessions: 100,
		Start:    "2018-11-01",
		Out:      os.Stdout,
	}
}

// Run writes the tree and reports what it wrote.
func (m *Main) Run() error {
	if m.Seed == -1 {
		m.Seed = time.Now().UnixNano()
	}
	if m.Artists < 1 || m.Songs < 1 || m.Users < 1 {
		return errors.New("artists, songs and users must be positive")
	}
	start, err := time.Parse("2006-01-02", m.Start)
	if err != nil {
		return errors.Wrap(err, "parsing start")
	}
	stats, err := fake.WriteTree(m.Dir, fake.TreeConfig{
		Seed:     m.Seed,
		Artists:  m.Artists,
		Songs:    m.Songs,
		Users:    m.Users,
		Sessions: m.Sessions,
		Start:    start,
	})
	if err != nil {
		return errors.Wrap(err, "writing tree")
	}
	if m.Out != nil {
		fmt.Fprintf(m.Out, "wrote %d song files and %d log files (%d events, %d plays) below %s\n",
			stats.SongFiles, stats.LogFiles, stats.Events, stats.Plays, m.Dir)
	}
	return nil
}
