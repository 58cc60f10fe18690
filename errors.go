package beliefdb

import (
	"errors"
	"fmt"
	"strings"
)

// ErrClosed is returned by operations on a closed store or backend.
var ErrClosed = errors.New("store closed")

// ConfigurationError reports inconsistent or missing inverse metadata, a
// cyclic slot inversion, or an illegal slot name. It is raised at open or at
// the offending operation and never auto-repaired outside of
// read-write+autofix open.
type ConfigurationError struct {
	Loc  Location // offending location, if any
	Slot string   // offending slot, if any
	Msg  string
	Err  error
}

func configErrf(loc Location, slot string, format string, args ...any) error {
	return &ConfigurationError{Loc: loc, Slot: slot, Msg: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Error() string {
	var buf strings.Builder
	buf.WriteString("configuration error")
	if e.Slot != "" {
		buf.WriteString(": slot ")
		buf.WriteString(e.Slot)
	}
	if !e.Loc.IsZero() {
		buf.WriteString(": at ")
		buf.WriteString(e.Loc.String())
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// ReferentNotFoundError reports an attempt to store a pointer to a location
// that does not exist. The operation is aborted and nothing is written.
type ReferentNotFoundError struct {
	Loc Location // location the pointer was being stored at
	Ref Location // nonexistent referent
}

func (e *ReferentNotFoundError) Error() string {
	return fmt.Sprintf("referent not found: %v (storing pointer at %v)", e.Ref, e.Loc)
}

// IndexCorruptionError reports a derived index entry that should exist but
// does not. It indicates a bug or external tampering and is never retried
// or silently continued past.
type IndexCorruptionError struct {
	Loc    Location // location whose derived entry is missing
	Slot   string   // holding slot of the missing entry
	Source Location // pointer source that should have been recorded
	Msg    string
}

func (e *IndexCorruptionError) Error() string {
	var buf strings.Builder
	buf.WriteString("index corruption: ")
	if e.Msg != "" {
		buf.WriteString(e.Msg)
	} else {
		buf.WriteString("missing derived entry")
	}
	fmt.Fprintf(&buf, ": target %v slot %q", e.Loc, e.Slot)
	if !e.Source.IsZero() {
		fmt.Fprintf(&buf, " source %v", e.Source)
	}
	return buf.String()
}

// ReadOnlyError reports a mutation attempted on a store or cache opened in
// read-only mode.
type ReadOnlyError struct {
	Op  string
	Loc Location
}

func (e *ReadOnlyError) Error() string {
	if e.Loc.IsZero() {
		return fmt.Sprintf("read-only store: %s rejected", e.Op)
	}
	return fmt.Sprintf("read-only store: %s rejected at %v", e.Op, e.Loc)
}

// TypeMismatchError reports a value accessed or stored under an incompatible
// shape assumption, e.g. a non-pointer value written to a slave slot.
type TypeMismatchError struct {
	Loc      Location
	Expected Kind
	Actual   Kind
	Msg      string
}

func (e *TypeMismatchError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "type mismatch at %v: expected %v, got %v", e.Loc, e.Expected, e.Actual)
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	return buf.String()
}

// DataError reports undecodable backend bytes.
type DataError struct {
	Key string
	Err error
	Msg string
}

func dataErrf(key string, err error, format string, args ...any) error {
	return &DataError{Key: key, Err: err, Msg: fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error { return e.Err }

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: key %q", e.Msg, e.Err, e.Key)
	}
	return fmt.Sprintf("%s: key %q", e.Msg, e.Key)
}
