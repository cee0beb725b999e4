// Package tiledtiff implements the Aperio/Trestle-style tiled BigTIFF
// vendor backend: a pyramid of tiled TIFF directories, the finest at
// index 0, each coarser level a power-of-two (or near enough) downsample
// of the one before, plus a handful of non-tiled directories that hold
// associated thumbnail/label/macro images.
//
// Grounded on cog.Reader (internal/cog/reader.go): its
// directory classification (first directory is full resolution, later
// smaller directories are pyramid levels) and tile-intersection paint
// loop are the model this package generalizes from GeoTIFF raster bands
// to microscopy RGB/JPEG tiles, routing grid iteration through the
// internal/grid package instead of a hand-rolled loop.
package tiledtiff

import (
	"bytes"
	"compress/zlib"
	"context"
	"image"
	"image/color"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/mrjoshuak/go-jpeg2000"
	"github.com/pspoerri/slidepyramid/internal/backend"
	"github.com/pspoerri/slidepyramid/internal/cache"
	"github.com/pspoerri/slidepyramid/internal/codec"
	"github.com/pspoerri/slidepyramid/internal/grid"
	"github.com/pspoerri/slidepyramid/internal/slideerr"
	"github.com/pspoerri/slidepyramid/internal/surface"
	"github.com/pspoerri/slidepyramid/internal/tiff"
	"golang.org/x/image/ccitt"
)

func init() {
	backend.Register(backend.Registration{
		Name:   "aperio",
		Detect: detect,
		Open:   open,
	})
}

func detect(r io.ReaderAt, size int64, name string) bool {
	var magic [4]byte
	if _, err := r.ReadAt(magic[:], 0); err != nil {
		return false
	}
	isClassic := (magic[0] == 'I' && magic[1] == 'I' && magic[2] == 42 && magic[3] == 0) ||
		(magic[0] == 'M' && magic[1] == 'M' && magic[2] == 0 && magic[3] == 42)
	isBig := (magic[0] == 'I' && magic[1] == 'I' && magic[2] == 43 && magic[3] == 0) ||
		(magic[0] == 'M' && magic[1] == 'M' && magic[2] == 0 && magic[3] == 43)
	return isClassic || isBig
}

// Backend serves tiles out of a tiled-TIFF pyramid.
type Backend struct {
	r      io.ReaderAt
	levels []*tiff.IFD
	assoc  map[string]*tiff.IFD
	cache  *cache.Cache
}

const defaultCacheBudget = 64 * 1024 * 1024

func open(r io.ReaderAt, size int64, name string) (backend.Backend, error) {
	ifds, err := tiff.ParseAll(r)
	if err != nil {
		return nil, err
	}

	var levels []*tiff.IFD
	assoc := make(map[string]*tiff.IFD)
	for i, d := range ifds {
		if d.IsTiled() {
			levels = append(levels, d)
			continue
		}
		key := associatedImageName(d, i)
		assoc[key] = d
	}
	if len(levels) == 0 {
		return nil, slideerr.BadDataf("aperio", "Open", "no tiled directories found")
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Width > levels[j].Width })

	return &Backend{r: r, levels: levels, assoc: assoc, cache: cache.New(defaultCacheBudget)}, nil
}

func associatedImageName(d *tiff.IFD, index int) string {
	desc := strings.ToLower(d.ImageDescription)
	switch {
	case strings.Contains(desc, "label"):
		return "label"
	case strings.Contains(desc, "macro"):
		return "macro"
	case strings.Contains(desc, "thumbnail"):
		return "thumbnail"
	default:
		return "associated_" + strconv.Itoa(index)
	}
}

func (b *Backend) Name() string { return "aperio" }

func (b *Backend) Levels() []backend.Level {
	out := make([]backend.Level, len(b.levels))
	base := float64(b.levels[0].Width)
	for i, d := range b.levels {
		out[i] = backend.Level{
			Width: int64(d.Width), Height: int64(d.Height),
			DownsampleHint: base / float64(d.Width),
			TileWidth:      int(d.TileWidth), TileHeight: int(d.TileLength),
		}
	}
	return out
}

func (b *Backend) Properties() map[string]string {
	props := map[string]string{"openslide.vendor": "aperio"}
	if len(b.levels) > 0 {
		props["aperio.ImageDescription"] = b.levels[0].ImageDescription
	}
	return props
}

func (b *Backend) AssociatedImages() map[string][2]int {
	out := make(map[string][2]int, len(b.assoc))
	for name, d := range b.assoc {
		out[name] = [2]int{int(d.Width), int(d.Height)}
	}
	return out
}

func (b *Backend) ReadAssociatedImage(name string) (*surface.Image, error) {
	d, ok := b.assoc[name]
	if !ok {
		return nil, slideerr.BadDataf("aperio", "ReadAssociatedImage", "no associated image named %q", name)
	}
	return b.decodeWholeStripImage(d)
}

// decodeWholeStripImage decodes a small non-tiled directory (thumbnail,
// label, macro) in one shot rather than through the tiled grid machinery.
func (b *Backend) decodeWholeStripImage(d *tiff.IFD) (*surface.Image, error) {
	if d.Compression == tiff.CompressionJPEG && len(d.StripOffsets) == 1 {
		buf := make([]byte, d.StripByteCounts[0])
		if _, err := b.r.ReadAt(buf, int64(d.StripOffsets[0])); err != nil {
			return nil, slideerr.IOf("aperio", "decodeWholeStripImage", err)
		}
		return codec.DecodeJPEG(buf, d.JPEGTables)
	}
	return nil, slideerr.Unsupportedf("aperio", "decodeWholeStripImage", "compression %v for associated image", d.Compression)
}

// PaintRegion paints the region [x,y,x+w,y+h) of level-pixel coordinates
// at the given pyramid level, recursively falling back to the next finer
// level (scaled down with SATURATE blending) for any tile the requested
// level is missing a TileOffsets entry for.
func (b *Backend) PaintRegion(ctx context.Context, dst *surface.Surface, level int, x, y, w, h float64) error {
	if level < 0 || level >= len(b.levels) {
		return slideerr.BadDataf("aperio", "PaintRegion", "level %d out of range", level)
	}
	d := b.levels[level]
	g := &grid.SimpleGrid{
		TilesAcross: d.TilesAcross(),
		TilesDown:   d.TilesDown(),
		TileW:       float64(d.TileWidth),
		TileH:       float64(d.TileLength),
		Read: func(col, row int) (*surface.Image, error) {
			return b.readTile(ctx, dst, level, col, row)
		},
	}
	return g.PaintRegion(dst, x, y, w, h)
}

// readTile returns the decoded image for (level,col,row), or nil with no
// error and no paint if the tile is genuinely missing and was already
// handled by a recursive finer-level fill directly onto dst.
func (b *Backend) readTile(ctx context.Context, dst *surface.Surface, level, col, row int) (*surface.Image, error) {
	d := b.levels[level]
	idx := d.TileIndex(col, row)
	if idx < 0 || idx >= len(d.TileOffsets) || d.TileByteCounts[idx] == 0 {
		return nil, b.fillMissingFromFinerLevel(ctx, dst, level, col, row)
	}

	key := cache.Key{Level: level, Col: col, Row: row}
	if buf, h, ok := b.cache.Get(key); ok {
		img := bytesToImage(buf, int(d.TileWidth), int(d.TileLength))
		h.Release()
		return img, nil
	}

	raw := make([]byte, d.TileByteCounts[idx])
	if _, err := b.r.ReadAt(raw, int64(d.TileOffsets[idx])); err != nil {
		return nil, slideerr.IOf("aperio", "readTile", err)
	}

	img, err := b.decodeTile(d, raw)
	if err != nil {
		return nil, err
	}

	encoded := surface.EncodeRowMajor(img)
	h := b.cache.Put(key, encoded, int64(len(encoded)))
	h.Release()
	return img, nil
}

func (b *Backend) decodeTile(d *tiff.IFD, raw []byte) (*surface.Image, error) {
	switch d.Compression {
	case tiff.CompressionJPEG, tiff.CompressionJPEGOld:
		return codec.DecodeJPEG(raw, d.JPEGTables)
	case tiff.CompressionNone:
		return rawSamplesToImage(raw, int(d.TileWidth), int(d.TileLength), d.SamplesPerPixel)
	case tiff.CompressionLZW:
		out, err := codec.DecodeTIFFLZW(raw)
		if err != nil {
			return nil, err
		}
		return rawSamplesToImage(out, int(d.TileWidth), int(d.TileLength), d.SamplesPerPixel)
	case tiff.CompressionDeflate, tiff.CompressionDeflateOld:
		zr, err := zlib.NewReader(newBytesReader(raw))
		if err != nil {
			return nil, slideerr.Decodef("aperio", "decodeTile", "%v", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, slideerr.Decodef("aperio", "decodeTile", "%v", err)
		}
		return rawSamplesToImage(out, int(d.TileWidth), int(d.TileLength), d.SamplesPerPixel)
	case tiff.CompressionPackBits:
		out, err := codec.DecodePackBits(raw, int(d.TileWidth)*int(d.TileLength)*int(d.SamplesPerPixel))
		if err != nil {
			return nil, err
		}
		return rawSamplesToImage(out, int(d.TileWidth), int(d.TileLength), d.SamplesPerPixel)
	case tiff.CompressionG3, tiff.CompressionG4:
		return decodeCCITT(d, raw)
	case tiff.CompressionJP2YCbCr, tiff.CompressionJP2RGB:
		return decodeJP2K(d, raw)
	default:
		return nil, slideerr.Unsupportedf("aperio", "decodeTile", "compression %v", d.Compression)
	}
}

// fillMissingFromFinerLevel implements the recursive missing-tile policy:
// paint the corresponding region from level-1 (scaled down by
// ds(level-1)/ds(level)) using the SATURATE operator so the finer-level
// fill blends with neighboring seam overdraw instead of hard-replacing
// it, recursing again if that finer level is also missing the tile. A
// missing tile at level 0, the finest level, paints nothing (base case).
func (b *Backend) fillMissingFromFinerLevel(ctx context.Context, dst *surface.Surface, level, col, row int) error {
	if level == 0 {
		return nil
	}
	d := b.levels[level]
	finer := b.levels[level-1]
	ratio := float64(d.Width) / float64(finer.Width)

	x0 := float64(col) * float64(d.TileWidth) / ratio
	y0 := float64(row) * float64(d.TileLength) / ratio
	w0 := float64(d.TileWidth) / ratio
	h0 := float64(d.TileLength) / ratio

	dst.SetOperator(surface.Saturate)
	defer dst.SetOperator(surface.Over)

	g := &grid.SimpleGrid{
		TilesAcross: finer.TilesAcross(),
		TilesDown:   finer.TilesDown(),
		TileW:       float64(finer.TileWidth),
		TileH:       float64(finer.TileLength),
		Read: func(c, r int) (*surface.Image, error) {
			return b.readTile(ctx, dst, level-1, c, r)
		},
	}
	// Extend the fetch rectangle by one pixel on each side so seam pixels
	// at tile boundaries get covered by the finer-level fill too.
	return g.PaintRegion(dst, x0-1, y0-1, w0+2, h0+2)
}

func bytesToImage(buf []byte, w, h int) *surface.Image {
	img := surface.NewImage(w, h)
	for i := range img.Pix {
		off := i * 4
		img.Pix[i] = surface.ARGB(buf[off], buf[off+1], buf[off+2], buf[off+3])
	}
	return img
}

// rawSamplesToImage converts uncompressed contiguous-planar RGB(A) samples
// into an ARGB32 image, assuming 8 bits/sample: the overwhelming majority
// of microscopy tiles use this depth, and exotic bit depths are out of
// scope for this backend.
func rawSamplesToImage(data []byte, w, h int, samplesPerPixel uint16) (*surface.Image, error) {
	n := int(samplesPerPixel)
	if n == 0 {
		n = 3
	}
	if len(data) < w*h*n {
		return nil, slideerr.BadDataf("aperio", "rawSamplesToImage", "short sample buffer: have %d, want %d", len(data), w*h*n)
	}
	img := surface.NewImage(w, h)
	for i := 0; i < w*h; i++ {
		off := i * n
		r := data[off]
		g := data[off+1]
		bch := data[off+2]
		a := uint8(0xFF)
		if n >= 4 {
			a = data[off+3]
		}
		img.Pix[i] = surface.ARGB(a, r, g, bch)
	}
	return img, nil
}

// decodeCCITT handles the Group 3/4 fax-compressed bilevel tiles some
// scanner vendors emit for brightfield label/macro directories. The scan
// line encoding is unrelated to JPEG/LZW/Deflate, so it gets its own
// decoder rather than folding into decodeTile's shared byte pipeline.
func decodeCCITT(d *tiff.IFD, raw []byte) (*surface.Image, error) {
	mode := ccitt.Group4
	if d.Compression == tiff.CompressionG3 {
		mode = ccitt.Group3
	}
	w, h := int(d.TileWidth), int(d.TileLength)
	invert := d.Photometric == tiff.PhotometricWhiteIsZero
	r := ccitt.NewReader(newBytesReader(raw), ccitt.MSB, mode, w, h, &ccitt.Options{Invert: invert})
	img, err := readGrayBitmap(r, w, h)
	if err != nil {
		return nil, slideerr.Decodef("aperio", "decodeCCITT", "%v", err)
	}
	return codec.FromImage(img), nil
}

// decodeJP2K handles Aperio's JPEG-2000-compressed tile directories (TIFF
// Compression 33003 YCbCr, 33005 RGB). The raw tile bytes are a JPEG-2000
// codestream (or boxed JP2 file); jpeg2000.Decode runs the actual
// bitstream decode and hands back a standard image.Image, from which this
// function pulls three full-resolution component planes and routes them
// through codec.DecodeJPEG2000Components. Both TIFF compression values
// land here as RGB: by the time jpeg2000.Decode returns, any YCbCr
// recombination the codestream itself specified has already happened, so
// there is no separate chroma-subsampled plane left for this function to
// reconstruct.
func decodeJP2K(d *tiff.IFD, raw []byte) (*surface.Image, error) {
	w, h := int(d.TileWidth), int(d.TileLength)
	if w == 0 || h == 0 {
		return nil, slideerr.BadDataf("aperio", "decodeJP2K", "JPEG-2000 tile has no geometry")
	}
	img, err := jpeg2000.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, slideerr.Decodef("aperio", "decodeJP2K", "%v", err)
	}
	bounds := img.Bounds()
	r := codec.Component{W: bounds.Dx(), H: bounds.Dy(), Data: make([]uint16, bounds.Dx()*bounds.Dy())}
	g := codec.Component{W: r.W, H: r.H, Data: make([]uint16, len(r.Data))}
	b := codec.Component{W: r.W, H: r.H, Data: make([]uint16, len(r.Data))}
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			pr, pg, pb, _ := img.At(x, y).RGBA()
			r.Data[i] = uint16(pr >> 8)
			g.Data[i] = uint16(pg >> 8)
			b.Data[i] = uint16(pb >> 8)
			i++
		}
	}
	return codec.DecodeJPEG2000Components(r, g, b, codec.ColorSpaceRGB)
}

// readGrayBitmap reads a packed MSB-first 1-bit-per-pixel bitmap (one byte
// per 8 pixels, rows padded to byte boundaries) and expands it into an
// 8-bit grayscale image, 0=black, 0xFF=white.
func readGrayBitmap(r io.Reader, w, h int) (*image.Gray, error) {
	rowBytes := (w + 7) / 8
	buf := make([]byte, rowBytes*h)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := buf[y*rowBytes : (y+1)*rowBytes]
		for x := 0; x < w; x++ {
			bit := row[x/8] >> (7 - uint(x%8)) & 1
			v := uint8(0)
			if bit == 0 {
				v = 0xFF
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img, nil
}

func (b *Backend) Close() error { return nil }

// newBytesReader avoids importing bytes in the exported surface just for
// this one internal use.
func newBytesReader(b []byte) io.Reader { return &sliceReader{b: b} }

type sliceReader struct {
	b   []byte
	pos int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}
