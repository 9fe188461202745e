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

// Package leveldb provides a datalake.Seen which spills dedup keys to disk, for
// inputs whose distinct keys do not fit in memory.
package leveldb

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sparkify/datalake"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

var _ datalake.Seen = &Seen{}

// Seen is a datalake.Seen storing keys in a private leveldb. The database is
// scratch space: Close removes it.
type Seen struct {
	dir string
	db  *leveldb.DB
}

type errorList []error

func (errs errorList) Error() string {
	errstrings := make([]string, len(errs))
	for i, err := range errs {
		errstrings[i] = err.Error()
	}
	return strings.Join(errstrings, "; ")
}

// NewSeenFunc returns a datalake.SeenFunc creating one leveldb per shard
// below dir.
func NewSeenFunc(dir string) datalake.SeenFunc {
	return func(name string) (datalake.Seen, error) {
		return NewSeen(filepath.Join(dir, name))
	}
}

// NewSeen opens an empty Seen in dir, discarding anything already there.
func NewSeen(dir string) (*Seen, error) {
	if err := os.RemoveAll(dir); err != nil {
		return nil, errors.Wrap(err, "clearing directory")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "making directory")
	}
	db, err := leveldb.OpenFile(dir, &opt.Options{NoSync: true})
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %s", dir)
	}
	return &Seen{dir: dir, db: db}, nil
}

// Add implements datalake.Seen.
func (s *Seen) Add(key string) (bool, error) {
	k := []byte(key)
	ok, err := s.db.Has(k, nil)
	if err != nil {
		return false, errors.Wrap(err, "checking key")
	}
	if ok {
		return false, nil
	}
	if err := s.db.Put(k, nil, nil); err != nil {
		return false, errors.Wrap(err, "storing key")
	}
	return true, nil
}

// Close closes the leveldb and removes its directory.
func (s *Seen) Close() error {
	errs := make(errorList, 0)
	if err := s.db.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "closing leveldb"))
	}
	if err := os.RemoveAll(s.dir); err != nil {
		errs = append(errs, errors.Wrap(err, "removing leveldb directory"))
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
