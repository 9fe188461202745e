package fake

import (
	"bufio"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sparkify/datalake"
)

// TreeConfig sizes a generated data set.
type TreeConfig struct {
	Seed     int64
	Artists  int
	Songs    int
	Users    int
	Sessions int
	Start    time.Time
}

// TreeStats counts what WriteTree wrote.
type TreeStats struct {
	SongFiles int
	LogFiles  int
	Events    int
	Plays     int
}

// WriteTree writes a catalog below dir/song_data, one JSON object per
// song_data/X/Y/Z/<track id>.json file, and an activity log below
// dir/log_data, one JSON lines file per day named
// log_data/YYYY/MM/YYYY-MM-DD-events.json.
func WriteTree(dir string, cfg TreeConfig) (TreeStats, error) {
	var stats TreeStats
	if cfg.Start.IsZero() {
		cfg.Start = time.Date(2018, time.November, 1, 0, 0, 0, 0, time.UTC)
	}

	cg := NewCatalogGenerator(cfg.Seed, cfg.Artists)
	tracks := make([]Track, 0, cfg.Songs)
	for i := 0; i < cfg.Songs; i++ {
		t := cg.Track()
		tracks = append(tracks, t)
		id := t.TrackID
		path := filepath.Join(dir, "song_data", id[2:3], id[3:4], id[4:5], id+".json")
		if err := writeJSON(path, t.CatalogRecord); err != nil {
			return stats, errors.Wrapf(err, "writing song %s", id)
		}
		stats.SongFiles++
	}

	eg := NewEventGenerator(cfg.Seed+1, tracks, cfg.Users, cfg.Start)
	byDay := make(map[string][]datalake.ActivityEvent)
	var days []string
	for i := 0; i < cfg.Sessions; i++ {
		for _, ev := range eg.Session() {
			day := time.UnixMilli(ev.Ts).UTC().Format("2006-01-02")
			if _, ok := byDay[day]; !ok {
				days = append(days, day)
			}
			byDay[day] = append(byDay[day], ev)
			stats.Events++
			if ev.Page == datalake.PlayPage {
				stats.Plays++
			}
		}
	}
	for _, day := range days {
		path := filepath.Join(dir, "log_data", day[:4], day[5:7], day+"-events.json")
		if err := writeLines(path, byDay[day]); err != nil {
			return stats, errors.Wrapf(err, "writing log for %s", day)
		}
		stats.LogFiles++
	}
	return stats, nil
}

func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "making directory")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshalling")
	}
	return errors.Wrap(os.WriteFile(path, b, 0644), "writing file")
}

func writeLines(path string, events []datalake.ActivityEvent) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "making directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating file")
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing file")
		}
	}()
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return errors.Wrap(err, "encoding event")
		}
	}
	return errors.Wrap(w.Flush(), "flushing")
}
