package datalake

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Keyer is implemented by every row type. Two rows are duplicates exactly
// when their keys are equal.
type Keyer interface {
	Key() string
}

// Seen remembers the keys a dedup stage has already emitted. A Seen is used
// by a single goroutine.
type Seen interface {
	// Add records key and reports whether it was new.
	Add(key string) (bool, error)
	Close() error
}

// SeenFunc creates a Seen for the named shard of a stage.
type SeenFunc func(name string) (Seen, error)

// MapSeen is an in-memory Seen.
type MapSeen map[string]struct{}

// NewMapSeen is a SeenFunc returning an empty MapSeen.
func NewMapSeen(name string) (Seen, error) {
	return make(MapSeen), nil
}

// Add implements Seen.
func (m MapSeen) Add(key string) (bool, error) {
	if _, ok := m[key]; ok {
		return false, nil
	}
	m[key] = struct{}{}
	return true, nil
}

// Close implements Seen.
func (MapSeen) Close() error { return nil }

// Distinct returns the rows of in whose keys were not already in seen, in
// input order. The first occurrence of each key wins.
func Distinct[T Keyer](in []T, seen Seen) ([]T, error) {
	out := make([]T, 0, len(in))
	for _, row := range in {
		added, err := seen.Add(row.Key())
		if err != nil {
			return nil, errors.Wrap(err, "recording key")
		}
		if added {
			out = append(out, row)
		}
	}
	return out, nil
}

// Shuffle hash-partitions rows into n buckets by key. Equal rows always land
// in the same bucket.
func Shuffle[T Keyer](rows []T, n int) [][]T {
	if n < 1 {
		n = 1
	}
	buckets := make([][]T, n)
	h := fnv.New64a()
	for _, row := range rows {
		h.Reset()
		_, _ = h.Write([]byte(row.Key()))
		b := h.Sum64() % uint64(n)
		buckets[b] = append(buckets[b], row)
	}
	return buckets
}

// Split cuts rows into at most n contiguous chunks of near equal size.
func Split[T any](rows []T, n int) [][]T {
	if n < 1 {
		n = 1
	}
	if n > len(rows) {
		n = len(rows)
	}
	chunks := make([][]T, 0, n)
	for i := 0; i < n; i++ {
		lo, hi := i*len(rows)/n, (i+1)*len(rows)/n
		chunks = append(chunks, rows[lo:hi])
	}
	return chunks
}

// distinctShards shuffles rows into opts.Shards buckets and deduplicates each
// bucket on its own goroutine. Because the shuffle is by key, the
// concatenation of the buckets is globally distinct.
func distinctShards[T Keyer](ctx context.Context, name string, rows []T, opts *Options) ([][]T, error) {
	buckets := Shuffle(rows, opts.shards())
	out := make([][]T, len(buckets))
	eg, ctx := errgroup.WithContext(ctx)
	for i := range buckets {
		i := i
		eg.Go(func() (err error) {
			if err := ctx.Err(); err != nil {
				return err
			}
			seen, err := opts.newSeen(fmt.Sprintf("%s-%d", name, i))
			if err != nil {
				return errors.Wrapf(err, "creating seen set for %s shard %d", name, i)
			}
			defer func() {
				if cerr := seen.Close(); cerr != nil && err == nil {
					err = errors.Wrapf(cerr, "closing seen set for %s shard %d", name, i)
				}
			}()
			out[i], err = Distinct(buckets[i], seen)
			return errors.Wrapf(err, "deduplicating %s shard %d", name, i)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// DistinctSharded is Distinct run over opts.Shards hash partitions.
func DistinctSharded[T Keyer](ctx context.Context, name string, rows []T, opts *Options) ([]T, error) {
	shards, err := distinctShards(ctx, name, rows, opts)
	if err != nil {
		return nil, err
	}
	return flatten(shards), nil
}

func flatten[T any](shards [][]T) []T {
	n := 0
	for _, s := range shards {
		n += len(s)
	}
	out := make([]T, 0, n)
	for _, s := range shards {
		out = append(out, s...)
	}
	return out
}
