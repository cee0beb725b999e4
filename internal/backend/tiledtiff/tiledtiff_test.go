package tiledtiff

import (
	"context"
	"testing"

	"github.com/pspoerri/slidepyramid/internal/cache"
	"github.com/pspoerri/slidepyramid/internal/surface"
	"github.com/pspoerri/slidepyramid/internal/tiff"
)

// memReader is a simple io.ReaderAt over an in-memory byte slice, used to
// back synthetic tile data for tests without a real TIFF file on disk.
type memReader struct{ b []byte }

func (m memReader) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m.b[off:])
	return n, nil
}

// solidRGBTile returns w*h*3 raw RGB bytes of a single color.
func solidRGBTile(w, h int, r, g, b byte) []byte {
	out := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		out[i*3] = r
		out[i*3+1] = g
		out[i*3+2] = b
	}
	return out
}

func TestPaintRegionReadsRawTiles(t *testing.T) {
	tileW, tileH := 4, 4
	tileData := solidRGBTile(tileW, tileH, 10, 20, 30)

	buf := make([]byte, 0, len(tileData)*4)
	offsets := make([]uint64, 4)
	counts := make([]uint64, 4)
	for i := 0; i < 4; i++ {
		offsets[i] = uint64(len(buf))
		buf = append(buf, tileData...)
		counts[i] = uint64(len(tileData))
	}

	level0 := &tiff.IFD{
		Width: 8, Height: 8,
		Compression: tiff.CompressionNone, SamplesPerPixel: 3,
		TileWidth: uint32(tileW), TileLength: uint32(tileH),
		TileOffsets: offsets, TileByteCounts: counts,
	}

	b := &Backend{
		r:      memReader{buf},
		levels: []*tiff.IFD{level0},
		assoc:  map[string]*tiff.IFD{},
		cache:  cache.New(1 << 20),
	}

	s := surface.NewOffscreen(8, 8)
	s.SetOrigin(0, 0)
	if err := b.PaintRegion(context.Background(), s, 0, 0, 0, 8, 8); err != nil {
		t.Fatalf("PaintRegion: %v", err)
	}
	if got := s.Image.At(0, 0); got != surface.ARGB(0xFF, 10, 20, 30) {
		t.Errorf("pixel (0,0) = %#x", got)
	}
	if got := s.Image.At(7, 7); got != surface.ARGB(0xFF, 10, 20, 30) {
		t.Errorf("pixel (7,7) = %#x", got)
	}
}

func TestPaintRegionFillsMissingTileFromFinerLevel(t *testing.T) {
	tileW, tileH := 2, 2

	// Level 0 (finest) is a 2x2 grid of distinctly colored 2x2 tiles,
	// covering a 4x4 pixel area in row-major tile order.
	colors := [4][3]byte{
		{10, 0, 0},  // (col 0, row 0)
		{0, 20, 0},  // (col 1, row 0)
		{0, 0, 30},  // (col 0, row 1)
		{40, 40, 0}, // (col 1, row 1)
	}
	var fineBuf []byte
	offsets := make([]uint64, 4)
	counts := make([]uint64, 4)
	for i, c := range colors {
		offsets[i] = uint64(len(fineBuf))
		tile := solidRGBTile(tileW, tileH, c[0], c[1], c[2])
		fineBuf = append(fineBuf, tile...)
		counts[i] = uint64(len(tile))
	}
	level0 := &tiff.IFD{
		Width: 4, Height: 4,
		Compression: tiff.CompressionNone, SamplesPerPixel: 3,
		TileWidth: uint32(tileW), TileLength: uint32(tileH),
		TileOffsets: offsets, TileByteCounts: counts,
	}

	// Level 1 (coarser) covers the same physical area in a single 2x2
	// tile whose byte count is zero, signalling "missing".
	level1 := &tiff.IFD{
		Width: 2, Height: 2,
		Compression: tiff.CompressionNone, SamplesPerPixel: 3,
		TileWidth: uint32(tileW), TileLength: uint32(tileH),
		TileOffsets: []uint64{0}, TileByteCounts: []uint64{0},
	}

	b := &Backend{
		r:      memReader{fineBuf},
		levels: []*tiff.IFD{level0, level1},
		assoc:  map[string]*tiff.IFD{},
		cache:  cache.New(1 << 20),
	}

	// The destination surface is sized to the finer level's 4x4 extent
	// so all four quadrants of the recursive fill are independently
	// observable, even though the read is against level 1's 2x2 tile.
	s := surface.NewOffscreen(4, 4)
	s.SetOrigin(0, 0)
	if err := b.PaintRegion(context.Background(), s, 1, 0, 0, 2, 2); err != nil {
		t.Fatalf("PaintRegion: %v", err)
	}

	want := [4]surface.Pixel{
		surface.ARGB(0xFF, 10, 0, 0),
		surface.ARGB(0xFF, 0, 20, 0),
		surface.ARGB(0xFF, 0, 0, 30),
		surface.ARGB(0xFF, 40, 40, 0),
	}
	if got := s.Image.At(0, 0); got != want[0] {
		t.Errorf("pixel (0,0) = %#x, want %#x", got, want[0])
	}
	if got := s.Image.At(2, 0); got != want[1] {
		t.Errorf("pixel (2,0) = %#x, want %#x", got, want[1])
	}
	if got := s.Image.At(0, 2); got != want[2] {
		t.Errorf("pixel (0,2) = %#x, want %#x", got, want[2])
	}
	if got := s.Image.At(2, 2); got != want[3] {
		t.Errorf("pixel (2,2) = %#x, want %#x", got, want[3])
	}
}
