package datalake

import (
	"strings"
	"testing"
)

func TestShardRange(t *testing.T) {
	tests := []struct {
		shard  int
		start  uint64
		end    uint64
		expErr string
	}{
		{shard: 0, start: 0, end: 1 << 33},
		{shard: 1, start: 1 << 33, end: 2 << 33},
		{shard: 7, start: 7 << 33, end: 8 << 33},
		{shard: -1, expErr: "out of range"},
		{shard: MaxShards, expErr: "out of range"},
	}
	for _, test := range tests {
		r, err := ShardRange(test.shard)
		if test.expErr != "" {
			if err == nil || !strings.Contains(err.Error(), test.expErr) {
				t.Fatalf("shard %d: expected error containing %q, got %v", test.shard, test.expErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("shard %d: %v", test.shard, err)
		}
		if r.Start != test.start || r.End != test.end {
			t.Fatalf("shard %d: got %+v", test.shard, r)
		}
	}
}

func TestRangeNexterExhausted(t *testing.T) {
	n, err := NewRangeNexter(IDRange{Start: 10, End: 12})
	if err != nil {
		t.Fatalf("getting range nexter: %v", err)
	}
	for _, exp := range []uint64{10, 11} {
		id, err := n.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != exp {
			t.Fatalf("expected %d, got %d", exp, id)
		}
	}
	if _, err := n.Next(); err == nil {
		t.Fatal("expected exhausted range error")
	}
}

func TestNewRangeNexterBadRange(t *testing.T) {
	if _, err := NewRangeNexter(IDRange{Start: 5, End: 1}); err == nil {
		t.Fatal("expected error for start > end")
	}
}
