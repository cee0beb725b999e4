// Package slide implements the public whole-slide-image surface:
// can_open/open/close, level geometry queries, read_region, and
// property/associated-image accessors, all sitting on top of the format
// dispatcher in internal/backend.
//
// Grounded on internal/cog's top-level Reader lifecycle (a single Reader
// opened from a path and closed once, with sub-operations like ReadRegion
// hanging off it); this package generalizes that single-format reader
// into a backend-polymorphic Slide and adds a sticky post-open error
// policy that single-format reader never needed.
package slide

import (
	"context"
	"fmt"
	"sync"

	_ "github.com/pspoerri/slidepyramid/internal/backend/jpegmosaic"
	_ "github.com/pspoerri/slidepyramid/internal/backend/tiledtiff"
	_ "github.com/pspoerri/slidepyramid/internal/backend/zipencrypted"

	"github.com/pspoerri/slidepyramid/internal/backend"
	"github.com/pspoerri/slidepyramid/internal/fileio"
	"github.com/pspoerri/slidepyramid/internal/slideerr"
	"github.com/pspoerri/slidepyramid/internal/surface"
)

// defaultBackgroundColor is used to fill the destination buffer for
// out-of-range read_region parameters and wherever a backend doesn't
// declare its own openslide.background-color property.
const defaultBackgroundColor = surface.Pixel(0xFFFFFFFF)

// Slide is an opened whole-slide image. After a successful Open it is
// immutable except for the properties map, the tile cache held by its
// backend, and backend-private structures the backend itself
// synchronizes — so every exported method here is safe to call
// concurrently from multiple goroutines except Close.
type Slide struct {
	file    *fileio.File
	backend backend.Backend

	downsamples []float64

	mu        sync.Mutex
	stickyErr error
}

// CanOpen reports whether any registered backend's detector claims path,
// without performing the (possibly expensive) full open.
func CanOpen(path string) bool {
	f, err := fileio.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	for _, reg := range backend.Registrations() {
		if reg.Detect(f, f.Size(), path) {
			return true
		}
	}
	return false
}

// Open opens path, running the format dispatcher and building the level
// geometry. Open fails atomically: on any error, no partial Slide is
// returned and every resource acquired so far is released.
func Open(path string) (*Slide, error) {
	f, err := fileio.Open(path)
	if err != nil {
		return nil, err
	}

	be, err := backend.Open(f, f.Size(), path)
	if err != nil {
		f.Close()
		return nil, err
	}

	s, err := newSlide(be)
	if err != nil {
		be.Close()
		f.Close()
		return nil, err
	}
	s.file = f
	return s, nil
}

// newSlide wraps an already-opened backend and computes its downsample
// table, without requiring an on-disk file. Exposed for tests exercising
// the level-geometry and read_region logic against a fake Backend.
func newSlide(be backend.Backend) (*Slide, error) {
	s := &Slide{backend: be}
	if err := s.computeDownsamples(); err != nil {
		return nil, err
	}
	return s, nil
}

// computeDownsamples derives downsamples[i] = mean(w0/wi, h0/hi) for each
// level and verifies the resulting sequence is non-decreasing, the
// dispatcher's one cross-backend sanity check.
func (s *Slide) computeDownsamples() error {
	levels := s.backend.Levels()
	if len(levels) == 0 {
		return slideerr.BadDataf("slide", "Open", "backend %s reported zero levels", s.backend.Name())
	}
	w0, h0 := float64(levels[0].Width), float64(levels[0].Height)

	ds := make([]float64, len(levels))
	ds[0] = 1.0
	for i := 1; i < len(levels); i++ {
		wi, hi := float64(levels[i].Width), float64(levels[i].Height)
		if wi <= 0 || hi <= 0 {
			return slideerr.BadDataf("slide", "Open", "level %d has non-positive dimensions", i)
		}
		ds[i] = ((w0 / wi) + (h0 / hi)) / 2
		if ds[i] < ds[i-1] {
			return slideerr.BadDataf("slide", "Open", "downsamples are not monotonically non-decreasing at level %d", i)
		}
	}
	s.downsamples = ds
	return nil
}

// Close releases the slide's backend and underlying file. It must not be
// called concurrently with any other Slide method.
func (s *Slide) Close() error {
	berr := s.backend.Close()
	var ferr error
	if s.file != nil {
		ferr = s.file.Close()
	}
	if berr != nil {
		return berr
	}
	return ferr
}

// LevelCount returns the number of resolution levels.
func (s *Slide) LevelCount() int { return len(s.downsamples) }

// LevelDimensions returns the pixel dimensions of level i.
func (s *Slide) LevelDimensions(i int) (w, h int64, err error) {
	levels := s.backend.Levels()
	if i < 0 || i >= len(levels) {
		return 0, 0, slideerr.BadDataf("slide", "LevelDimensions", "level %d out of range", i)
	}
	return levels[i].Width, levels[i].Height, nil
}

// LevelDownsample returns the downsample factor of level i relative to
// level 0.
func (s *Slide) LevelDownsample(i int) (float64, error) {
	if i < 0 || i >= len(s.downsamples) {
		return 0, slideerr.BadDataf("slide", "LevelDownsample", "level %d out of range", i)
	}
	return s.downsamples[i], nil
}

// BestLevelForDownsample returns the largest level index i with
// downsamples[i] <= d, clamped to [0, LevelCount()-1]: 0 for d below the
// finest level's downsample, the coarsest level for d above the coarsest
// level's downsample.
func (s *Slide) BestLevelForDownsample(d float64) int {
	best := 0
	for i, v := range s.downsamples {
		if v <= d {
			best = i
		}
	}
	return best
}

// ReadRegion decodes the w x h region of level-pixel coordinates
// (x, y, x+w, y+h) at the given level into dest, which must be exactly
// w*h*4 bytes (ARGB32, row-major). Out-of-range parameters (level outside
// [0, LevelCount()), negative w or h) are not errors: the destination is
// filled with the slide's background color and ReadRegion returns nil.
// A backend-level error instead sets the slide's sticky error, which
// every subsequent ReadRegion call will also return.
func (s *Slide) ReadRegion(ctx context.Context, dest []byte, x, y float64, level int, w, h int) error {
	if len(dest) != w*h*4 {
		return slideerr.BadDataf("slide", "ReadRegion", "destination buffer is %d bytes, want %d", len(dest), w*h*4)
	}

	s.mu.Lock()
	sticky := s.stickyErr
	s.mu.Unlock()
	if sticky != nil {
		return sticky
	}

	if level < 0 || level >= s.LevelCount() || w <= 0 || h <= 0 {
		fillBackground(dest, w, h, s.backgroundColor())
		return nil
	}

	pix := make([]surface.Pixel, w*h)
	bg := s.backgroundColor()
	for i := range pix {
		pix[i] = bg
	}
	dst := surface.FromExternal(pix, w, h)
	dst.SetOrigin(x, y)

	paintErr := s.backend.PaintRegion(ctx, dst, level, x, y, float64(w), float64(h))
	pixelsToBytes(pix, dest)
	if paintErr != nil {
		s.mu.Lock()
		s.stickyErr = paintErr
		s.mu.Unlock()
		return paintErr
	}
	return nil
}

func (s *Slide) backgroundColor() surface.Pixel {
	if hex, ok := s.backend.Properties()["openslide.background-color"]; ok {
		if p, ok := parseHexColor(hex); ok {
			return p
		}
	}
	return defaultBackgroundColor
}

func parseHexColor(hex string) (surface.Pixel, bool) {
	if len(hex) != 6 {
		return 0, false
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return 0, false
	}
	return surface.ARGB(0xFF, r, g, b), true
}

func fillBackground(dest []byte, w, h int, color surface.Pixel) {
	for i := 0; i < w*h; i++ {
		off := i * 4
		dest[off] = byte(color >> 24)
		dest[off+1] = byte(color >> 16)
		dest[off+2] = byte(color >> 8)
		dest[off+3] = byte(color)
	}
}

// pixelsToBytes writes px back into dest in the same big-endian ARGB32
// row-major layout ReadRegion's callers expect. ReadRegion currently
// operates on a pixel copy (bytesToPixels) rather than aliasing dest
// directly, so this must be called to flush composited pixels back out.
func pixelsToBytes(px []surface.Pixel, dest []byte) {
	for i, p := range px {
		off := i * 4
		dest[off] = byte(p >> 24)
		dest[off+1] = byte(p >> 16)
		dest[off+2] = byte(p >> 8)
		dest[off+3] = byte(p)
	}
}

// PropertyNames returns the names of every available property.
func (s *Slide) PropertyNames() []string {
	props := s.backend.Properties()
	out := make([]string, 0, len(props))
	for k := range props {
		out = append(out, k)
	}
	return out
}

// PropertyValue returns the value of a named property, or false if unset.
func (s *Slide) PropertyValue(name string) (string, bool) {
	v, ok := s.backend.Properties()[name]
	return v, ok
}

// AssociatedImageNames returns the names of embedded associated images
// (e.g. "thumbnail", "label", "macro").
func (s *Slide) AssociatedImageNames() []string {
	assoc := s.backend.AssociatedImages()
	out := make([]string, 0, len(assoc))
	for k := range assoc {
		out = append(out, k)
	}
	return out
}

// AssociatedImageDimensions returns the pixel dimensions of a named
// associated image.
func (s *Slide) AssociatedImageDimensions(name string) (w, h int, ok bool) {
	dims, ok := s.backend.AssociatedImages()[name]
	if !ok {
		return 0, 0, false
	}
	return dims[0], dims[1], true
}

// ReadAssociatedImage decodes a named associated image into ARGB32
// row-major bytes sized exactly w*h*4.
func (s *Slide) ReadAssociatedImage(name string) ([]byte, int, int, error) {
	img, err := s.backend.ReadAssociatedImage(name)
	if err != nil {
		return nil, 0, 0, err
	}
	return surface.EncodeRowMajor(img), img.W, img.H, nil
}
