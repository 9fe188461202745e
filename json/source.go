// Package json decodes catalog files and activity logs from a
// datalake.RawSource.
package json

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sparkify/datalake"
	"golang.org/x/sync/errgroup"
)

// MaxLineSize is the longest activity log line ReadEvents accepts.
const MaxLineSize = 1 << 20

// ReadCatalog decodes every object of rs as exactly one CatalogRecord. The
// objects are read by up to concurrency goroutines, so the order of the result
// is not defined.
//
// A file which does not hold exactly one JSON object, or whose object lacks
// song_id or artist_id, fails the whole read with a
// *datalake.MalformedInputError.
func ReadCatalog(ctx context.Context, rs datalake.RawSource, concurrency int) ([]datalake.CatalogRecord, error) {
	return readAll(ctx, rs, concurrency, decodeCatalog)
}

// ReadEvents decodes every line of every object of rs as an ActivityEvent.
// Blank lines are skipped. Duplicates are kept; callers remove them with
// datalake.Distinct.
//
// A line that is not a JSON object, has attributes of the wrong type, or lacks
// ts or page fails the whole read with a *datalake.MalformedInputError.
func ReadEvents(ctx context.Context, rs datalake.RawSource, concurrency int) ([]datalake.ActivityEvent, error) {
	return readAll(ctx, rs, concurrency, decodeEvents)
}

func readAll[T any](ctx context.Context, rs datalake.RawSource, concurrency int, decode func(r datalake.NamedReadCloser) ([]T, error)) ([]T, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([][]T, concurrency)
	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		i := i
		eg.Go(func() error {
			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				r, err := rs.NextReader()
				if err == io.EOF {
					return nil
				} else if err != nil {
					return errors.Wrap(err, "getting next reader")
				}
				recs, err := decode(r)
				if cerr := r.Close(); cerr != nil && err == nil {
					err = errors.Wrapf(cerr, "closing %s", r.Name())
				}
				if err != nil {
					return err
				}
				results[i] = append(results[i], recs...)
			}
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	n := 0
	for _, r := range results {
		n += len(r)
	}
	out := make([]T, 0, n)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

type catalogRequired struct {
	SongID   json.RawMessage `json:"song_id"`
	ArtistID json.RawMessage `json:"artist_id"`
}

func decodeCatalog(r datalake.NamedReadCloser) ([]datalake.CatalogRecord, error) {
	malformed := func(err error) error {
		return &datalake.MalformedInputError{Source: r.Name(), Err: err}
	}
	dec := json.NewDecoder(r)
	var raw json.RawMessage
	if err := dec.Decode(&raw); err == io.EOF {
		return nil, malformed(errors.New("no catalog object"))
	} else if err != nil {
		return nil, malformed(err)
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		if err == nil {
			return nil, malformed(errors.New("more than one catalog object"))
		}
		return nil, malformed(err)
	}

	var rec datalake.CatalogRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, malformed(err)
	}
	var req catalogRequired
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, malformed(err)
	}
	if err := require("song_id", req.SongID); err != nil {
		return nil, malformed(err)
	}
	if err := require("artist_id", req.ArtistID); err != nil {
		return nil, malformed(err)
	}
	return []datalake.CatalogRecord{rec}, nil
}

type eventRequired struct {
	Ts   json.RawMessage `json:"ts"`
	Page json.RawMessage `json:"page"`
}

func decodeEvents(r datalake.NamedReadCloser) ([]datalake.ActivityEvent, error) {
	var events []datalake.ActivityEvent
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		malformed := func(err error) error {
			return &datalake.MalformedInputError{Source: r.Name(), Line: line, Err: err}
		}
		var e datalake.ActivityEvent
		if err := json.Unmarshal(b, &e); err != nil {
			return nil, malformed(err)
		}
		var req eventRequired
		if err := json.Unmarshal(b, &req); err != nil {
			return nil, malformed(err)
		}
		if err := require("ts", req.Ts); err != nil {
			return nil, malformed(err)
		}
		if err := require("page", req.Page); err != nil {
			return nil, malformed(err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, &datalake.MalformedInputError{Source: r.Name(), Line: line + 1, Err: err}
	}
	return events, nil
}

func require(name string, raw json.RawMessage) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return errors.Errorf("missing required attribute %s", name)
	}
	return nil
}
