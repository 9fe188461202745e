// Package duckdb writes datalake tables as hive-partitioned Parquet using an
// embedded DuckDB.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
	"github.com/pkg/errors"
	"github.com/sparkify/datalake"
)

// Publisher copies a table directory written under a local base to its final
// location, replacing what was there. rel is the slash separated path of the
// table below the base.
type Publisher interface {
	Publish(ctx context.Context, localDir, rel string) error
}

// WriterOption is a functional option for Writer.
type WriterOption func(w *Writer) error

// OptWriterPublisher publishes every table after it has been written locally.
func OptWriterPublisher(p Publisher) WriterOption {
	return func(w *Writer) error {
		w.publisher = p
		return nil
	}
}

// OptWriterLogger sets the logger.
func OptWriterLogger(l datalake.Logger) WriterOption {
	return func(w *Writer) error {
		w.log = l
		return nil
	}
}

// OptWriterCompression sets the Parquet compression codec (snappy, zstd,
// gzip or uncompressed).
func OptWriterCompression(codec string) WriterOption {
	return func(w *Writer) error {
		switch strings.ToLower(codec) {
		case "snappy", "zstd", "gzip", "uncompressed":
			w.compression = strings.ToUpper(codec)
			return nil
		}
		return errors.Errorf("unknown parquet compression %q", codec)
	}
}

// OptWriterBatchSize sets how many rows are inserted per statement.
func OptWriterBatchSize(n int) WriterOption {
	return func(w *Writer) error {
		if n < 1 {
			return errors.Errorf("batch size must be positive, got %d", n)
		}
		w.batchSize = n
		return nil
	}
}

// Writer is a datalake.Writer. Each table is staged into a temporary DuckDB
// table on its own connection and copied out as Parquet to
// {base}/{name}/{name}_table, so several tables may be written concurrently.
type Writer struct {
	base        string
	db          *sql.DB
	publisher   Publisher
	log         datalake.Logger
	compression string
	batchSize   int
}

// NewWriter opens an in-memory DuckDB database writing below base.
func NewWriter(base string, opts ...WriterOption) (*Writer, error) {
	w := &Writer{
		base:        base,
		log:         datalake.NopLogger{},
		compression: "SNAPPY",
		batchSize:   500,
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, errors.Wrap(err, "applying option")
		}
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(err, "opening duckdb")
	}
	w.db = db
	return w, nil
}

// Close releases the database.
func (w *Writer) Close() error {
	return errors.Wrap(w.db.Close(), "closing duckdb")
}

// TablePath is the slash separated location of a table below the output base.
func TablePath(table string) string {
	return table + "/" + table + "_table"
}

// Write implements datalake.Writer. Any error is a *datalake.WriteFailure. A
// table that fails validation is rejected before anything is touched on disk;
// a failure after that leaves the table directory in an undefined state.
func (w *Writer) Write(ctx context.Context, t *datalake.Table) (err error) {
	if err := t.Validate(); err != nil {
		return &datalake.WriteFailure{Table: t.Name, Err: err}
	}
	defer func() {
		if err != nil {
			err = &datalake.WriteFailure{Table: t.Name, Err: err}
		}
	}()

	rel := TablePath(t.Name)
	dir := filepath.Join(w.base, filepath.FromSlash(rel))
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrap(err, "removing previous output")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "creating table directory")
	}

	conn, err := w.db.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, "getting connection")
	}
	defer conn.Close()

	stage := quoteIdent("stage_" + t.Name)
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quoteIdent(c.Name) + " " + c.Type
	}
	create := fmt.Sprintf("CREATE OR REPLACE TEMP TABLE %s (%s)", stage, strings.Join(cols, ", "))
	if _, err := conn.ExecContext(ctx, create); err != nil {
		return errors.Wrap(err, "creating stage table")
	}
	defer func() {
		if _, derr := conn.ExecContext(context.Background(), "DROP TABLE IF EXISTS "+stage); derr != nil {
			w.log.Printf("dropping stage table for %s: %v", t.Name, derr)
		}
	}()

	if err := w.insert(ctx, conn, stage, t); err != nil {
		return errors.Wrap(err, "staging rows")
	}
	if _, err := conn.ExecContext(ctx, w.copyStatement(stage, dir, t)); err != nil {
		return errors.Wrap(err, "copying to parquet")
	}
	w.log.Debugf("wrote %d rows of %s to %s", len(t.Rows), t.Name, dir)

	if w.publisher != nil {
		if err := w.publisher.Publish(ctx, dir, rel); err != nil {
			return errors.Wrap(err, "publishing")
		}
	}
	return nil
}

// insert loads t's rows into stage in batches of multi-row INSERTs inside one
// transaction.
func (w *Writer) insert(ctx context.Context, conn *sql.Conn, stage string, t *datalake.Table) (err error) {
	if len(t.Rows) == 0 {
		return nil
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				w.log.Printf("rolling back stage of %s: %v", t.Name, rbErr)
			}
		}
	}()

	var full *sql.Stmt
	for start := 0; start < len(t.Rows); start += w.batchSize {
		end := start + w.batchSize
		if end > len(t.Rows) {
			end = len(t.Rows)
		}
		batch := t.Rows[start:end]
		args := make([]interface{}, 0, len(batch)*len(t.Columns))
		for _, r := range batch {
			args = append(args, r.Values()...)
		}
		if len(batch) < w.batchSize {
			_, err = tx.ExecContext(ctx, insertStatement(stage, len(t.Columns), len(batch)), args...)
		} else {
			if full == nil {
				full, err = tx.PrepareContext(ctx, insertStatement(stage, len(t.Columns), w.batchSize))
				if err != nil {
					return errors.Wrap(err, "preparing insert")
				}
				defer full.Close()
			}
			_, err = full.ExecContext(ctx, args...)
		}
		if err != nil {
			return errors.Wrapf(err, "inserting rows %d-%d", start, end)
		}
	}
	return errors.Wrap(tx.Commit(), "committing")
}

func insertStatement(stage string, ncols, nrows int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", ncols), ", ") + ")"
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(stage)
	sb.WriteString(" VALUES ")
	for i := 0; i < nrows; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(row)
	}
	return sb.String()
}

// copyStatement writes a partitioned table as a hive directory tree under dir
// and an unpartitioned one as dir/data_0.parquet.
func (w *Writer) copyStatement(stage, dir string, t *datalake.Table) string {
	if len(t.PartitionBy) == 0 {
		return fmt.Sprintf("COPY %s TO %s (FORMAT PARQUET, COMPRESSION %s)",
			stage, quoteLiteral(filepath.Join(dir, "data_0.parquet")), w.compression)
	}
	parts := make([]string, len(t.PartitionBy))
	for i, p := range t.PartitionBy {
		parts[i] = quoteIdent(p)
	}
	return fmt.Sprintf("COPY %s TO %s (FORMAT PARQUET, COMPRESSION %s, PARTITION_BY (%s), OVERWRITE_OR_IGNORE true)",
		stage, quoteLiteral(dir), w.compression, strings.Join(parts, ", "))
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}
