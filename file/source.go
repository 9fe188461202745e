// Package file provides a datalake.RawSource over local files.
package file

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/sparkify/datalake"
)

// SrcOption is a functional option for the file RawSource.
type SrcOption func(s *RawSource) error

// OptSrcSplit tells the source to hand out files of at least minSize bytes as
// parts line-aligned fragments, so that a large JSON lines file can be
// decoded by several goroutines. Whole-file formats must not be split.
func OptSrcSplit(parts int, minSize int64) SrcOption {
	return func(s *RawSource) error {
		if parts < 1 {
			return errors.Errorf("split parts must be positive, got %d", parts)
		}
		s.splitParts = parts
		s.splitMin = minSize
		return nil
	}
}

// RawSource is a datalake.RawSource which reads every regular file matching a
// glob pattern. Patterns use doublestar syntax, so "**" crosses directories.
// A pattern naming a directory matches every file below it.
type RawSource struct {
	pattern    string
	splitParts int
	splitMin   int64

	objects []object
	objIdx  *uint64
}

type object struct {
	path       string
	fragment   bool
	start, end int64
}

// NewRawSource lists the files matching pattern. It is an error for nothing
// to match.
func NewRawSource(pattern string, opts ...SrcOption) (*RawSource, error) {
	idx := uint64(0)
	s := &RawSource{
		pattern: pattern,
		objIdx:  &idx,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, errors.Wrap(err, "applying option")
		}
	}
	if info, err := os.Stat(pattern); err == nil && info.IsDir() {
		pattern = filepath.Join(pattern, "**", "*")
	}
	paths, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, errors.Wrapf(err, "matching %s", pattern)
	}
	if len(paths) == 0 {
		return nil, errors.Errorf("no files match %s", s.pattern)
	}
	sort.Strings(paths)
	for _, p := range paths {
		objs, err := s.objectsOf(p)
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s", p)
		}
		s.objects = append(s.objects, objs...)
	}
	return s, nil
}

func (s *RawSource) objectsOf(path string) ([]object, error) {
	if s.splitParts <= 1 {
		return []object{{path: path}}, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "statting")
	}
	if info.Size() < s.splitMin {
		return []object{{path: path}}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening")
	}
	defer f.Close()
	frags, err := datalake.SplitFileLines(f, int64(s.splitParts))
	if err != nil {
		return nil, errors.Wrap(err, "splitting")
	}
	objs := make([]object, len(frags))
	for i, ff := range frags {
		start, end := ff.Bounds()
		objs[i] = object{path: path, fragment: true, start: start, end: end}
		ff.Close()
	}
	return objs, nil
}

// Len returns the number of readers the source hands out in total.
func (s *RawSource) Len() int {
	return len(s.objects)
}

// NextReader implements datalake.RawSource.
func (s *RawSource) NextReader() (datalake.NamedReadCloser, error) {
	idx := atomic.AddUint64(s.objIdx, 1) - 1
	if int(idx) >= len(s.objects) {
		return nil, io.EOF
	}
	obj := s.objects[idx]
	if obj.fragment {
		ff, err := datalake.OpenFileFragment(obj.path, obj.start, obj.end)
		if err != nil {
			return nil, errors.Wrapf(err, "opening fragment of %s", obj.path)
		}
		return ff, nil
	}
	f, err := os.Open(obj.path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", obj.path)
	}
	return f, nil
}
