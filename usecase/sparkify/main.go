package sparkify

import (
	"context"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sparkify/datalake"
	"github.com/sparkify/datalake/aws/s3"
	"github.com/sparkify/datalake/boltdb"
	"github.com/sparkify/datalake/duckdb"
	"github.com/sparkify/datalake/file"
	"github.com/sparkify/datalake/geohash"
	"github.com/sparkify/datalake/json"
	"github.com/sparkify/datalake/leveldb"
	"github.com/sparkify/datalake/termstat"
	"golang.org/x/sync/errgroup"
)

// Main holds the configuration of one pipeline run. Every field is explicit;
// nothing is read from the process environment by Run itself.
type Main struct {
	CatalogInput     string `help:"Glob of song catalog files, a local pattern or s3://bucket/pattern."`
	LogInput         string `help:"Glob of activity log files, a local pattern or s3://bucket/pattern."`
	Output           string `help:"Output base, a local directory or s3://bucket/prefix."`
	StagingDir       string `help:"Local directory tables are written to before upload when the output is on S3. Blank uses a temporary directory."`
	Region           string `help:"AWS region to use."`
	AccessKeyID      string `help:"AWS access key id. Blank uses the SDK default chain."`
	SecretAccessKey  string `help:"AWS secret access key."`
	Endpoint         string `help:"S3 endpoint override for S3 compatible stores."`
	Concurrency      int    `help:"Number of goroutines reading input and number of shards for deduplication and the join."`
	SplitParts       int    `help:"Split local log files of at least 8MiB into this many line-aligned fragments. 1 disables splitting."`
	UserPolicy       string `help:"How users seen at several levels are collapsed: full-tuple or latest-level."`
	JoinPolicy       string `help:"How play events match catalog songs: artist or artist-song."`
	SpillDir         string `help:"Deduplicate through LevelDB stores below this directory instead of memory."`
	Ledger           string `help:"Record the run and each table outcome in this bolt file."`
	GeohashPrecision int    `help:"Add an artist_geohash column of this many characters to the artist table. 0 disables it."`
	Compression      string `help:"Parquet compression: snappy, zstd, gzip or uncompressed."`
	Stats            bool   `help:"Print counters to stderr while running."`
	Verbose          bool   `help:"Enable debug logging."`
	LogFormat        string `help:"Log format: console or json."`

	// Stderr receives logs and stats.
	Stderr io.Writer `flag:"-"`
}

// NewMain returns a Main with default settings.
func NewMain() *Main {
	return &Main{
		Region:      "us-west-2",
		Concurrency: 4,
		SplitParts:  1,
		UserPolicy:  string(datalake.UsersFullTuple),
		JoinPolicy:  string(datalake.JoinArtist),
		Compression: "snappy",
		LogFormat:   "console",
		Stderr:      os.Stderr,
	}
}

func (m *Main) output() io.Writer {
	if m.Stderr == nil {
		return os.Stderr
	}
	return m.Stderr
}

// Logger builds the zerolog backed logger described by LogFormat and Verbose.
func (m *Main) Logger() (datalake.Logger, error) {
	var zl zerolog.Logger
	switch m.LogFormat {
	case "", "console":
		zl = zerolog.New(zerolog.ConsoleWriter{Out: m.output(), NoColor: true, TimeFormat: time.RFC3339})
	case "json":
		zl = zerolog.New(m.output())
	default:
		return nil, errors.Errorf("unknown log format %q (want console or json)", m.LogFormat)
	}
	level := zerolog.InfoLevel
	if m.Verbose {
		level = zerolog.DebugLevel
	}
	return datalake.ZeroLogger{Logger: zl.Level(level).With().Timestamp().Logger()}, nil
}

// Config is what the ledger records about a run. Credentials are left out.
func (m *Main) Config() map[string]string {
	return map[string]string{
		"catalog-input":     m.CatalogInput,
		"log-input":         m.LogInput,
		"output":            m.Output,
		"concurrency":       strconv.Itoa(m.Concurrency),
		"user-policy":       m.UserPolicy,
		"join-policy":       m.JoinPolicy,
		"geohash-precision": strconv.Itoa(m.GeohashPrecision),
		"compression":       m.Compression,
	}
}

// Run reads both inputs, builds every table and writes them to Output.
func (m *Main) Run(ctx context.Context) error {
	start := time.Now()
	log, err := m.Logger()
	if err != nil {
		return errors.Wrap(err, "setting up logger")
	}
	opts, err := m.options(log)
	if err != nil {
		return err
	}
	if m.Stats {
		tc := termstat.NewCollector(m.output(), time.Second)
		defer tc.Stop()
		opts.Stats = tc
	}

	if m.Ledger == "" {
		err = m.run(ctx, opts, nil)
	} else {
		err = m.runRecorded(ctx, opts)
	}
	if err != nil {
		return err
	}
	log.Printf("done in %v", time.Since(start))
	return nil
}

func (m *Main) runRecorded(ctx context.Context, opts *datalake.Options) (err error) {
	ledger, err := boltdb.NewLedger(m.Ledger)
	if err != nil {
		return errors.Wrap(err, "opening ledger")
	}
	defer ledger.Close()
	run, err := ledger.Begin(m.Config())
	if err != nil {
		return errors.Wrap(err, "beginning run")
	}
	opts.Log.Printf("run %s started", run.ID)
	defer func() {
		if ferr := ledger.Finish(run, err); ferr != nil && err == nil {
			err = errors.Wrapf(ferr, "finishing run %s", run.ID)
		}
	}()
	return m.run(ctx, opts, &recorder{ledger: ledger, run: run, log: opts.Log})
}

func (m *Main) options(log datalake.Logger) (*datalake.Options, error) {
	users, err := datalake.ParseUserPolicy(m.UserPolicy)
	if err != nil {
		return nil, err
	}
	join, err := datalake.ParseJoinPolicy(m.JoinPolicy)
	if err != nil {
		return nil, err
	}
	if m.GeohashPrecision < 0 || m.GeohashPrecision > geohash.MaxPrecision {
		return nil, errors.Errorf("geohash precision must be between 0 and %d, got %d", geohash.MaxPrecision, m.GeohashPrecision)
	}
	opts := &datalake.Options{
		Shards: m.Concurrency,
		Users:  users,
		Join:   join,
		Log:    log,
	}
	if m.SpillDir != "" {
		opts.NewSeen = leveldb.NewSeenFunc(m.SpillDir)
	}
	return opts, nil
}

func (m *Main) run(ctx context.Context, opts *datalake.Options, rec *recorder) error {
	log := opts.Log
	var sess *session.Session
	needAWS := s3.IsURL(m.CatalogInput) || s3.IsURL(m.LogInput) || s3.IsURL(m.Output)
	if needAWS {
		var err error
		sess, err = s3.NewSession(s3.Config{
			Region:          m.Region,
			AccessKeyID:     m.AccessKeyID,
			SecretAccessKey: m.SecretAccessKey,
			Endpoint:        m.Endpoint,
		})
		if err != nil {
			return errors.Wrap(err, "getting aws session")
		}
	}

	var (
		catalog []datalake.CatalogRecord
		events  []datalake.ActivityEvent
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		rs, err := m.source(gctx, sess, m.CatalogInput, false)
		if err != nil {
			return errors.Wrap(err, "opening catalog input")
		}
		catalog, err = json.ReadCatalog(gctx, rs, m.Concurrency)
		return errors.Wrap(err, "reading catalog")
	})
	eg.Go(func() error {
		rs, err := m.source(gctx, sess, m.LogInput, true)
		if err != nil {
			return errors.Wrap(err, "opening log input")
		}
		events, err = json.ReadEvents(gctx, rs, m.Concurrency)
		return errors.Wrap(err, "reading activity log")
	})
	if err := eg.Wait(); err != nil {
		return err
	}
	log.Printf("read %d catalog records and %d events", len(catalog), len(events))

	tables, err := BuildTables(ctx, catalog, events, opts, m.GeohashPrecision)
	if err != nil {
		return err
	}

	w, cleanup, err := m.writer(sess, log)
	if err != nil {
		return err
	}
	defer cleanup()
	return WriteTables(ctx, w, tables, rec.result)
}

// source opens a local or S3 input. Only JSON lines inputs may be split.
func (m *Main) source(ctx context.Context, sess *session.Session, pattern string, lines bool) (datalake.RawSource, error) {
	if pattern == "" {
		return nil, errors.New("no input pattern given")
	}
	if s3.IsURL(pattern) {
		return s3.NewRawSource(ctx, sess, pattern)
	}
	var opts []file.SrcOption
	if lines && m.SplitParts > 1 {
		opts = append(opts, file.OptSrcSplit(m.SplitParts, 8<<20))
	}
	return file.NewRawSource(pattern, opts...)
}

// writer returns the table writer for Output and a function releasing it,
// which also removes a temporary staging directory.
func (m *Main) writer(sess *session.Session, log datalake.Logger) (*duckdb.Writer, func(), error) {
	if m.Output == "" {
		return nil, nil, errors.New("no output given")
	}
	opts := []duckdb.WriterOption{
		duckdb.OptWriterLogger(log),
		duckdb.OptWriterCompression(m.Compression),
	}
	base, tmp := m.Output, ""
	if s3.IsURL(m.Output) {
		pub, err := s3.NewPublisher(sess, m.Output, log)
		if err != nil {
			return nil, nil, errors.Wrap(err, "setting up s3 output")
		}
		opts = append(opts, duckdb.OptWriterPublisher(pub))
		base = m.StagingDir
		if base == "" {
			tmp, err = os.MkdirTemp("", "datalake-staging")
			if err != nil {
				return nil, nil, errors.Wrap(err, "creating staging directory")
			}
			base = tmp
		}
		log.Printf("staging tables in %s", base)
	}
	w, err := duckdb.NewWriter(base, opts...)
	if err != nil {
		if tmp != "" {
			os.RemoveAll(tmp)
		}
		return nil, nil, errors.Wrap(err, "getting writer")
	}
	cleanup := func() {
		if err := w.Close(); err != nil {
			log.Printf("closing writer: %v", err)
		}
		if tmp != "" {
			os.RemoveAll(tmp)
		}
	}
	return w, cleanup, nil
}

// BuildTables derives all five output tables from the decoded inputs. Events
// are deduplicated and filtered to plays first. A positive geohashPrecision
// adds the artist_geohash column.
func BuildTables(ctx context.Context, catalog []datalake.CatalogRecord, events []datalake.ActivityEvent, opts *datalake.Options, geohashPrecision int) ([]*datalake.Table, error) {
	events, err := datalake.DistinctSharded(ctx, "events", events, opts)
	if err != nil {
		return nil, errors.Wrap(err, "deduplicating events")
	}
	plays := datalake.FilterPlays(events)

	var (
		songs     []datalake.SongRow
		artists   []datalake.ArtistRow
		users     []datalake.UserRow
		times     []datalake.TimeRow
		songplays []datalake.Songplay
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		songs, err = datalake.BuildSongs(gctx, catalog, opts)
		return err
	})
	eg.Go(func() error {
		var err error
		artists, err = datalake.BuildArtists(gctx, catalog, opts)
		if err != nil || geohashPrecision == 0 {
			return err
		}
		artists, err = geohash.Enrich(artists, geohashPrecision)
		return errors.Wrap(err, "adding artist geohash")
	})
	eg.Go(func() (err error) {
		users, err = datalake.BuildUsers(gctx, plays, opts)
		return err
	})
	eg.Go(func() (err error) {
		times, err = datalake.BuildTimes(gctx, plays, opts)
		return err
	})
	eg.Go(func() (err error) {
		songplays, err = datalake.BuildSongplays(gctx, plays, catalog, opts)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return []*datalake.Table{
		datalake.NewSongsTable(songs),
		datalake.NewArtistTable(artists, geohashPrecision > 0),
		datalake.NewUsersTable(users),
		datalake.NewTimeTable(times),
		datalake.NewSongplaysTable(songplays),
	}, nil
}

// WriteTables writes tables concurrently. The first failure cancels the
// writes still running; tables already written stay in place. done, if not
// nil, is called once per table with its outcome.
func WriteTables(ctx context.Context, w datalake.Writer, tables []*datalake.Table, done func(boltdb.TableResult)) error {
	eg, gctx := errgroup.WithContext(ctx)
	for _, t := range tables {
		t := t
		eg.Go(func() error {
			start := time.Now()
			err := w.Write(gctx, t)
			if done != nil {
				res := boltdb.TableResult{Table: t.Name, Rows: len(t.Rows), Duration: time.Since(start)}
				if err != nil {
					res.Err = err.Error()
				}
				done(res)
			}
			return err
		})
	}
	return eg.Wait()
}

// recorder stores table outcomes in the run ledger. Concurrent writers share
// one Run, so recording is serialized.
type recorder struct {
	mu     sync.Mutex
	ledger *boltdb.Ledger
	run    *boltdb.Run
	log    datalake.Logger
}

// result is safe to call on a nil recorder, which records nothing.
func (r *recorder) result(res boltdb.TableResult) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ledger.RecordTable(r.run, res); err != nil {
		r.log.Printf("recording table %s: %v", res.Table, err)
	}
}
