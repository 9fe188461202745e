package datalake

import (
	"github.com/pkg/errors"
)

// ShardBits is the number of low bits of a surrogate key holding the
// shard-local counter. The high bits hold the shard index.
const ShardBits = 33

// MaxShards bounds the shard index so the end of the last range still fits
// in a uint64.
const MaxShards = 1 << 30

// IDRange is inclusive at Start and exclusive at End... like slices.
type IDRange struct {
	Start uint64
	End   uint64
}

// ShardRange returns the id range owned by shard. Ranges of different shards
// never overlap, so shards can assign ids without talking to each other.
func ShardRange(shard int) (IDRange, error) {
	if shard < 0 || shard >= MaxShards {
		return IDRange{}, errors.Errorf("shard %d out of range [0, %d)", shard, MaxShards)
	}
	start := uint64(shard) << ShardBits
	return IDRange{
		Start: start,
		End:   start + 1<<ShardBits,
	}, nil
}

// RangeNexter hands out the ids of one IDRange in increasing order.
type RangeNexter interface {
	Next() (uint64, error)
}

type rangeNexter struct {
	r IDRange
	n *Nexter
}

// NewRangeNexter returns a RangeNexter over r. It is safe for concurrent use.
func NewRangeNexter(r IDRange) (RangeNexter, error) {
	if r.Start > r.End {
		return nil, errors.Errorf("range start > end: %v", r)
	}
	return &rangeNexter{
		r: r,
		n: NewNexter(NexterStartFrom(r.Start)),
	}, nil
}

func (n *rangeNexter) Next() (uint64, error) {
	id := n.n.Next()
	if id >= n.r.End || id < n.r.Start {
		return 0, errors.Errorf("id range %v exhausted", n.r)
	}
	return id, nil
}
