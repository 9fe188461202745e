// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package boltdb keeps a ledger of pipeline runs and the outcome of every
// table each run wrote.
package boltdb

import (
	"encoding/binary"
	"time"

	"github.com/boltdb/bolt"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var runBucket = []byte("runs")

// TableResult is the outcome of writing one table.
type TableResult struct {
	Table    string        `json:"table"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"err,omitempty"`
}

// Run is one pipeline run.
type Run struct {
	Seq      uint64            `json:"seq"`
	ID       string            `json:"id"`
	Started  time.Time         `json:"started"`
	Finished time.Time         `json:"finished,omitempty"`
	Config   map[string]string `json:"config,omitempty"`
	Tables   []TableResult     `json:"tables,omitempty"`
	Err      string            `json:"err,omitempty"`
}

// Ledger stores Runs in a bolt database, keyed by a sequence so that
// iteration is in start order.
type Ledger struct {
	Db *bolt.DB
}

// Close syncs and closes the underlying boltdb.
func (l *Ledger) Close() error {
	err := l.Db.Sync()
	if err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return l.Db.Close()
}

// NewLedger opens or creates the ledger at filename.
func NewLedger(filename string) (l *Ledger, err error) {
	l = &Ledger{}
	l.Db, err = bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	err = l.Db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runBucket)
		return errors.Wrap(err, "creating runs bucket")
	})
	if err != nil {
		l.Db.Close()
		return nil, errors.Wrap(err, "ensuring bucket existence")
	}
	return l, nil
}

func runKey(r *Run) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, r.Seq)
	return k
}

// Begin records the start of a run and returns it.
func (l *Ledger) Begin(config map[string]string) (*Run, error) {
	r := &Run{
		ID:      uuid.NewString(),
		Started: time.Now().UTC(),
		Config:  config,
	}
	err := l.Db.Update(func(tx *bolt.Tx) (err error) {
		r.Seq, err = tx.Bucket(runBucket).NextSequence()
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "allocating run sequence")
	}
	return r, l.put(r)
}

// RecordTable appends a table outcome to r and stores it.
func (l *Ledger) RecordTable(r *Run, res TableResult) error {
	r.Tables = append(r.Tables, res)
	return l.put(r)
}

// Finish marks r as finished with the given error, which may be nil.
func (l *Ledger) Finish(r *Run, runErr error) error {
	r.Finished = time.Now().UTC()
	if runErr != nil {
		r.Err = runErr.Error()
	}
	return l.put(r)
}

func (l *Ledger) put(r *Run) error {
	val, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshalling run")
	}
	err = l.Db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(runBucket).Put(runKey(r), val)
	})
	return errors.Wrapf(err, "storing run %s", r.ID)
}

// Runs returns the last n runs, oldest first. n < 1 means all of them.
func (l *Ledger) Runs(n int) ([]Run, error) {
	var runs []Run
	err := l.Db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(runBucket).Cursor()
		for k, v := c.Last(); k != nil && (n < 1 || len(runs) < n); k, v = c.Prev() {
			var r Run
			if err := json.Unmarshal(v, &r); err != nil {
				return errors.Wrapf(err, "decoding run %d", binary.BigEndian.Uint64(k))
			}
			runs = append(runs, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	return runs, nil
}
