// Package slideerr defines the error kinds shared across the slide-reading
// pipeline: format dispatch, codec adapters, and the region painter all
// classify failures into one of a small closed set so that
// callers can distinguish "never going to work" from "try the next
// backend" from "the underlying file changed under us".
package slideerr

import (
	"errors"
	"fmt"
)

// Kind is one of the four error categories a slide operation can fail with.
type Kind int

const (
	// Unsupported means the file is not recognized by any registered backend.
	Unsupported Kind = iota
	// BadData means the format was recognized but the file is structurally
	// malformed: bad magic, truncated data, checksum mismatch, inconsistent
	// or non-monotonic dimensions.
	BadData
	// IO means an underlying read, seek, or open call failed.
	IO
	// Decode means a codec rejected a payload it was handed.
	Decode
)

func (k Kind) String() string {
	switch k {
	case Unsupported:
		return "unsupported"
	case BadData:
		return "bad-data"
	case IO:
		return "io"
	case Decode:
		return "decode"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error wraps an underlying cause with a Kind so callers can classify it
// with errors.As without string matching.
type Error struct {
	Kind    Kind
	Backend string // backend name, or "" if not backend-specific
	Op      string // short operation description, e.g. "parse IFD"
	Err     error
}

func (e *Error) Error() string {
	if e.Backend != "" {
		return fmt.Sprintf("%s: %s: %s: %v", e.Backend, e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind.
func New(kind Kind, backend, op string, err error) *Error {
	return &Error{Kind: kind, Backend: backend, Op: op, Err: err}
}

// Unsupportedf builds an Unsupported error.
func Unsupportedf(backend, op, format string, args ...any) error {
	return New(Unsupported, backend, op, fmt.Errorf(format, args...))
}

// BadDataf builds a BadData error.
func BadDataf(backend, op, format string, args ...any) error {
	return New(BadData, backend, op, fmt.Errorf(format, args...))
}

// IOf builds an IO error wrapping err.
func IOf(backend, op string, err error) error {
	return New(IO, backend, op, err)
}

// Decodef builds a Decode error.
func Decodef(backend, op, format string, args ...any) error {
	return New(Decode, backend, op, fmt.Errorf(format, args...))
}

// KindOf classifies err, returning Decode (the most common "something the
// downstream codec objected to" case) if err carries no Kind of its own.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return Decode
}

// Is reports whether err (or something it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
