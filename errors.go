package datalake

import (
	"fmt"
)

// MalformedInputError is returned when a catalog file or a log line can not be
// decoded into its record type. It is always fatal to the run.
type MalformedInputError struct {
	// Source names the file, object key or fragment.
	Source string
	// Line is the 1-based line within Source, or 0 for whole-file records.
	Line int
	Err  error
}

func (e *MalformedInputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed input %s:%d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("malformed input %s: %v", e.Source, e.Err)
}

// Cause supports errors.Cause from github.com/pkg/errors.
func (e *MalformedInputError) Cause() error { return e.Err }

func (e *MalformedInputError) Unwrap() error { return e.Err }

// WriteFailure is returned when a table could not be written completely. The
// table's output is in an undefined state and the whole table must be
// rewritten.
type WriteFailure struct {
	Table string
	Err   error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("writing table %s: %v", e.Table, e.Err)
}

// Cause supports errors.Cause from github.com/pkg/errors.
func (e *WriteFailure) Cause() error { return e.Err }

func (e *WriteFailure) Unwrap() error { return e.Err }
