// Package jpegmosaic implements the Hamamatsu VMS-style backend: a single
// giant restart-marker-delimited JPEG stream (or a small
// handful of them, one per color/focal plane) covering a regular grid of
// tiles, accompanied by a plain-text ".vms" map file that records tile
// geometry, per-level scale factors, and optionally a set of byte-offset
// hints for where each tile's restart marker falls.
//
// Grounded on internal/restart for the offset index/background worker and
// internal/grid's TilemapGrid for irregular coordinates (a Hamamatsu
// mosaic's tiles are nominally regular but the .vms file gives explicit
// per-tile placement, which this package passes straight through to
// TilemapGrid rather than assuming a uniform pitch).
package jpegmosaic

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pspoerri/slidepyramid/internal/backend"
	"github.com/pspoerri/slidepyramid/internal/cache"
	"github.com/pspoerri/slidepyramid/internal/codec"
	"github.com/pspoerri/slidepyramid/internal/fileio"
	"github.com/pspoerri/slidepyramid/internal/grid"
	"github.com/pspoerri/slidepyramid/internal/restart"
	"github.com/pspoerri/slidepyramid/internal/slideerr"
	"github.com/pspoerri/slidepyramid/internal/surface"
)

func init() {
	backend.Register(backend.Registration{
		Name:   "hamamatsu",
		Detect: detect,
		Open:   open,
	})
}

func detect(r io.ReaderAt, size int64, name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".vms")
}

// hintFile is the parsed contents of the .vms map file.
type hintFile struct {
	mapFileName                 string
	imageWidth, imageHeight     int
	tileWidth, tileHeight       int
	cols, rows                  int
	numLayers                   int
	jpegFiles                   []string // one JPEG file per layer/focal-plane
	optimisationFile            string
	restartMarkerHints          []int64 // parsed from the .opt hint file, if present; nil otherwise
}

// parseVMS parses the key=value lines of a .vms map file. Unknown keys are
// ignored, matching the tolerant style real vendor tools use when reading
// each other's map files.
func parseVMS(r io.Reader) (*hintFile, error) {
	h := &hintFile{}
	sc := bufio.NewScanner(r)
	jpegFiles := map[int]string{}
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		switch {
		case key == "MapFile":
			h.mapFileName = val
		case key == "ImageWidth":
			h.imageWidth, _ = strconv.Atoi(val)
		case key == "ImageHeight":
			h.imageHeight, _ = strconv.Atoi(val)
		case key == "TileWidth":
			h.tileWidth, _ = strconv.Atoi(val)
		case key == "TileHeight":
			h.tileHeight, _ = strconv.Atoi(val)
		case key == "NoJpegColumns":
			h.cols, _ = strconv.Atoi(val)
		case key == "NoJpegRows":
			h.rows, _ = strconv.Atoi(val)
		case key == "NoLayers":
			h.numLayers, _ = strconv.Atoi(val)
		case key == "OptimisationFile":
			h.optimisationFile = val
		case strings.HasPrefix(key, "ImageFile"):
			idx := 0
			if rest := strings.TrimPrefix(key, "ImageFile"); rest != "" {
				idx, _ = strconv.Atoi(rest)
			}
			jpegFiles[idx] = val
		}
	}
	if err := sc.Err(); err != nil {
		return nil, slideerr.IOf("hamamatsu", "parseVMS", err)
	}
	if h.cols == 0 || h.rows == 0 || h.tileWidth == 0 || h.tileHeight == 0 {
		return nil, slideerr.BadDataf("hamamatsu", "parseVMS", "map file missing required grid geometry")
	}
	for i := 0; i < len(jpegFiles); i++ {
		h.jpegFiles = append(h.jpegFiles, jpegFiles[i])
	}
	return h, nil
}

// layer is one opened JPEG mosaic stream (one per focal plane / color
// channel the .vms file names).
type layer struct {
	file   *fileio.File // nil when OpenLayer was called directly with a caller-owned reader
	header []byte
	idx    *restart.Index
	src    *restart.TileSource
	worker *restart.Worker
}

// Backend serves tiles out of a Hamamatsu-style restart-marker mosaic.
type Backend struct {
	hint   *hintFile
	layers []*layer
	cache  *cache.Cache
}

const defaultCacheBudget = 64 * 1024 * 1024

// jpegSOSMarker is the Start Of Scan marker; everything from SOI through
// the byte after this marker's length-prefixed payload is the shared
// header every tile's synthesized stream needs.
const jpegSOSMarker = 0xDA

func open(r io.ReaderAt, size int64, name string) (backend.Backend, error) {
	// The caller passes the .vms map file itself as r/name; each layer's
	// JPEG mosaic file sits alongside it in the same directory: Hamamatsu
	// slides are a directory of sibling files named by the map file.
	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, slideerr.IOf("hamamatsu", "Open", err)
	}
	hint, err := parseVMS(strings.NewReader(string(buf)))
	if err != nil {
		return nil, err
	}

	b := &Backend{hint: hint, cache: cache.New(defaultCacheBudget)}
	if err := b.openLayerFiles(filepath.Dir(name)); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// openLayerFiles opens every sibling JPEG mosaic file the map file names,
// one per focal plane/color channel, concurrently: each open scans its
// file for the SOS marker before the tile index can be built, and a
// Hamamatsu slide with several focal planes pays that scan cost once per
// layer with no dependency between layers.
func (b *Backend) openLayerFiles(dir string) error {
	b.layers = make([]*layer, len(b.hint.jpegFiles))

	var g errgroup.Group
	for i, name := range b.hint.jpegFiles {
		i, name := i, name
		g.Go(func() error {
			f, err := fileio.Open(filepath.Join(dir, name))
			if err != nil {
				return slideerr.IOf("hamamatsu", "openLayerFiles", err)
			}
			l, err := newLayer(f, f.Size(), b.hint.cols*b.hint.rows, b.hint.restartMarkerHints)
			if err != nil {
				f.Close()
				return err
			}
			l.file = f
			b.layers[i] = l
			return nil
		})
	}
	return g.Wait()
}

// OpenLayer attaches one already-opened JPEG mosaic file reader as a
// layer, for callers that manage the sibling file's lifetime themselves
// rather than going through openLayerFiles.
func (b *Backend) OpenLayer(r io.ReaderAt, size int64) error {
	l, err := newLayer(r, size, b.hint.cols*b.hint.rows, b.hint.restartMarkerHints)
	if err != nil {
		return err
	}
	b.layers = append(b.layers, l)
	return nil
}

func newLayer(r io.ReaderAt, size int64, tileCount int, hints []int64) (*layer, error) {
	headerEnd, err := findSOSEnd(r, size)
	if err != nil {
		return nil, err
	}
	header := make([]byte, headerEnd)
	if _, err := r.ReadAt(header, 0); err != nil {
		return nil, slideerr.IOf("hamamatsu", "OpenLayer", err)
	}

	idx := restart.NewIndex(r, headerEnd, size, tileCount, hints)
	src := restart.NewTileSource(header, idx, r)
	worker := restart.NewWorker(idx)
	return &layer{header: header, idx: idx, src: src, worker: worker}, nil
}

// findSOSEnd scans from the start of the file for the SOS marker and
// returns the offset immediately after its length-prefixed payload, i.e.
// the start of the first tile's entropy-coded scan data.
func findSOSEnd(r io.ReaderAt, size int64) (int64, error) {
	buf := make([]byte, 8192)
	n, err := r.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return 0, slideerr.IOf("hamamatsu", "findSOSEnd", err)
	}
	for i := 0; i+4 < n; i++ {
		if buf[i] == 0xFF && buf[i+1] == jpegSOSMarker {
			segLen := int(buf[i+2])<<8 | int(buf[i+3])
			return int64(i + 2 + segLen), nil
		}
	}
	return 0, slideerr.BadDataf("hamamatsu", "findSOSEnd", "no SOS marker found in first %d bytes", n)
}

func (b *Backend) Name() string { return "hamamatsu" }

func (b *Backend) Levels() []backend.Level {
	levels := []backend.Level{{
		Width: int64(b.hint.imageWidth), Height: int64(b.hint.imageHeight),
		DownsampleHint: 1, TileWidth: b.hint.tileWidth, TileHeight: b.hint.tileHeight,
	}}
	// Hamamatsu slides additionally expose reduced-resolution "map"
	// levels at any power of two that evenly divides the tile pitch;
	// each is derived rather than separately stored.
	for denom := 2; b.hint.tileWidth%denom == 0 && b.hint.tileHeight%denom == 0; denom *= 2 {
		levels = append(levels, backend.Level{
			Width: int64(b.hint.imageWidth) / int64(denom), Height: int64(b.hint.imageHeight) / int64(denom),
			DownsampleHint: float64(denom), TileWidth: b.hint.tileWidth / denom, TileHeight: b.hint.tileHeight / denom,
		})
	}
	return levels
}

func (b *Backend) Properties() map[string]string {
	return map[string]string{
		"openslide.vendor":   "hamamatsu",
		"hamamatsu.NoLayers": fmt.Sprintf("%d", b.hint.numLayers),
	}
}

func (b *Backend) AssociatedImages() map[string][2]int { return map[string][2]int{} }

func (b *Backend) ReadAssociatedImage(name string) (*surface.Image, error) {
	return nil, slideerr.Unsupportedf("hamamatsu", "ReadAssociatedImage", "no associated image named %q", name)
}

func (b *Backend) PaintRegion(ctx context.Context, dst *surface.Surface, level int, x, y, w, h float64) error {
	if len(b.layers) == 0 {
		return slideerr.BadDataf("hamamatsu", "PaintRegion", "no JPEG layers opened")
	}
	denom := 1
	if level > 0 {
		denom = 1 << uint(level)
	}
	tw := float64(b.hint.tileWidth) / float64(denom)
	th := float64(b.hint.tileHeight) / float64(denom)

	g := &grid.SimpleGrid{
		TilesAcross: b.hint.cols, TilesDown: b.hint.rows,
		TileW: tw, TileH: th,
		Read: func(col, row int) (*surface.Image, error) {
			return b.readTile(level, col, row)
		},
	}
	return g.PaintRegion(dst, x, y, w, h)
}

func (b *Backend) readTile(level, col, row int) (*surface.Image, error) {
	l := b.layers[0] // single-layer brightfield slides are the common case
	tileN := row*b.hint.cols + col
	l.worker.Touch()

	key := cache.Key{Level: level, Col: col, Row: row}
	if buf, h, ok := b.cache.Get(key); ok {
		img := decodeCachedARGB(buf, b.hint.tileWidth, b.hint.tileHeight)
		h.Release()
		return scaleForLevel(img, level), nil
	}

	jpegBytes, err := l.src.Tile(tileN)
	if err != nil {
		return nil, err
	}
	img, err := codec.DecodeJPEG(jpegBytes, nil)
	if err != nil {
		return nil, err
	}

	encoded := surface.EncodeRowMajor(img)
	hnd := b.cache.Put(key, encoded, int64(len(encoded)))
	hnd.Release()

	return scaleForLevel(img, level), nil
}

// scaleForLevel nearest-neighbor downsamples a full-resolution tile for a
// derived reduced-resolution level: Hamamatsu's reduced levels are
// computed on read, not separately stored.
func scaleForLevel(img *surface.Image, level int) *surface.Image {
	if level == 0 {
		return img
	}
	factor := 1 << uint(level)
	w, h := img.W/factor, img.H/factor
	if w == 0 || h == 0 {
		return img
	}
	out := surface.NewImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(x, y, img.At(x*factor, y*factor))
		}
	}
	return out
}

func decodeCachedARGB(buf []byte, w, h int) *surface.Image {
	img := surface.NewImage(w, h)
	for i := range img.Pix {
		off := i * 4
		img.Pix[i] = surface.ARGB(buf[off], buf[off+1], buf[off+2], buf[off+3])
	}
	return img
}

func (b *Backend) Close() error {
	var err error
	for _, l := range b.layers {
		if l == nil {
			continue
		}
		l.worker.Stop()
		if l.file != nil {
			if ferr := l.file.Close(); ferr != nil && err == nil {
				err = ferr
			}
		}
	}
	return err
}
