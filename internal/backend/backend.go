// Package backend defines the common vendor-format interface and a format
// dispatcher that probes each registered backend in turn and opens
// whichever one claims the file.
//
// Grounded on internal/encode's own format indirection: its Encoder
// interface (encoder.go) is generalized here from "pick an output codec
// by format string" to "pick a vendor backend by sniffing the file",
// since a slide file carries no explicit format tag a caller supplies up
// front.
package backend

import (
	"context"
	"io"

	"github.com/pspoerri/slidepyramid/internal/surface"
)

// Level describes one resolution level of an opened slide.
type Level struct {
	Width, Height       int64
	DownsampleHint      float64 // the backend's own notion of this level's downsample, may be refined by the caller
	TileWidth, TileHeight int
}

// Backend is the interface every vendor-format engine implements. A
// Backend instance is bound to one open file for its lifetime; Close
// releases whatever file descriptors, mmaps, or background workers it
// holds.
type Backend interface {
	// Name identifies the backend for error messages and properties
	// (e.g. "aperio", "hamamatsu", "intemedic").
	Name() string

	// Levels returns the backend's native resolution levels, ordinarily
	// ordered from finest (index 0) to coarsest.
	Levels() []Level

	// PaintRegion paints the region [x, y, x+w, y+h) of level pixels at
	// the given level index onto dst, which is already sized/positioned
	// by the caller (the format dispatcher handles downsample selection
	// and coordinate translation; backends only deal in level-local
	// pixel coordinates).
	PaintRegion(ctx context.Context, dst *surface.Surface, level int, x, y, w, h float64) error

	// Properties returns the backend's vendor metadata as a flat
	// string-keyed map, surfaced to callers via property_names/property_value.
	Properties() map[string]string

	// AssociatedImages returns the names and pixel dimensions of any
	// embedded thumbnail/label/macro images the backend exposes.
	AssociatedImages() map[string][2]int

	// ReadAssociatedImage decodes one associated image by name.
	ReadAssociatedImage(name string) (*surface.Image, error)

	Close() error
}

// Detector sniffs r (and, where useful, the filename extension/size) and
// returns true if this backend recognizes the file as its own format.
// Detection must be cheap and must not mutate any shared state; it exists
// purely to let the dispatcher pick a backend before committing to a full
// Open.
type Detector func(r io.ReaderAt, size int64, name string) bool

// Opener performs the real, possibly expensive open (parsing directories,
// building indexes, launching background workers) once a Detector has
// claimed the file.
type Opener func(r io.ReaderAt, size int64, name string) (Backend, error)

// Registration pairs a backend's detector and opener under its name.
type Registration struct {
	Name   string
	Detect Detector
	Open   Opener
}

var registry []Registration

// Register adds a backend to the dispatcher's candidate list. Backends
// are probed in registration order, so more specific/cheaper detectors
// should register first.
func Register(reg Registration) {
	registry = append(registry, reg)
}

// Registrations returns the registered backends in probe order, for
// callers (like CanOpen) that need to run detectors without a full Open.
func Registrations() []Registration {
	return registry
}

// Open probes every registered backend in order and opens the first one
// that claims the file: the dispatcher tries each backend's detector in a
// fixed order and opens the first match.
func Open(r io.ReaderAt, size int64, name string) (Backend, error) {
	for _, reg := range registry {
		if reg.Detect(r, size, name) {
			return reg.Open(r, size, name)
		}
	}
	return nil, ErrUnrecognizedFormat
}

// ErrUnrecognizedFormat is returned by Open when no registered backend's
// detector claims the file.
var ErrUnrecognizedFormat = unrecognizedFormatError{}

type unrecognizedFormatError struct{}

func (unrecognizedFormatError) Error() string { return "backend: file format not recognized" }
