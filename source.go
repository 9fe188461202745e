package datalake

import (
	"io"
)

// NamedReadCloser is one object handed out by a RawSource. Name identifies
// the object (file path, S3 key, fragment) in error messages.
type NamedReadCloser interface {
	io.ReadCloser
	Name() string
}

// RawSource hands out readers for every object matching its pattern, one at a
// time. NextReader returns io.EOF once all objects have been handed out.
// Implementations must be safe to call from multiple goroutines so that
// several readers can drain one source concurrently.
type RawSource interface {
	NextReader() (NamedReadCloser, error)
}
