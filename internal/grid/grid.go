// Package grid implements the spatial index of tiles within one pyramid
// level: a Simple grid (regular rows×cols, content produced on demand)
// and a Tilemap grid (explicit cells with per-cell placement offsets and
// footprints, for formats whose tiles overlap or come from irregular
// sources).
//
// Grounded on cog.Reader.ReadRegion's tile-intersection loop
// (internal/cog/reader.go:678-730), which walks colStart..colEnd,
// rowStart..rowEnd and blits each tile's overlap with the requested
// rectangle; this package generalizes that loop into a reusable
// PaintRegion shared by both grid shapes and backed by the surface
// package's clipping instead of hand-rolled overlap arithmetic.
package grid

import "github.com/pspoerri/slidepyramid/internal/surface"

// ReadFunc decodes (or recursively synthesizes) the ARGB content of the
// tile at (col, row) and returns it, or (nil, nil) if the backend has
// nothing to paint there (already handled, e.g. by a recursive coarse-level
// fill). Errors propagate and abort the enclosing PaintRegion call.
type ReadFunc func(col, row int) (*surface.Image, error)

// SimpleGrid is the regular rows×cols grid used by tiled-TIFF backends:
// cell (col, row) exists iff it is within [0, TilesAcross) × [0, TilesDown).
type SimpleGrid struct {
	TilesAcross, TilesDown int
	TileW, TileH           float64
	Read                   ReadFunc
}

// PaintRegion paints every tile intersecting the level-pixel rectangle
// [x, y, x+w, y+h) onto s, in row-major order. Order only matters for
// overlapping tiles under a non-default operator; non-overlapping tiles
// under the default operator paint identically regardless of order.
func (g *SimpleGrid) PaintRegion(s *surface.Surface, x, y, w, h float64) error {
	colStart, colEnd, rowStart, rowEnd := tileRange(x, y, w, h, g.TileW, g.TileH)
	if colStart < 0 {
		colStart = 0
	}
	if rowStart < 0 {
		rowStart = 0
	}
	if colEnd >= g.TilesAcross {
		colEnd = g.TilesAcross - 1
	}
	if rowEnd >= g.TilesDown {
		rowEnd = g.TilesDown - 1
	}

	for row := rowStart; row <= rowEnd; row++ {
		for col := colStart; col <= colEnd; col++ {
			img, err := g.Read(col, row)
			if err != nil {
				return err
			}
			if img == nil {
				continue
			}
			s.PaintImage(img, float64(col)*g.TileW, float64(row)*g.TileH)
		}
	}
	return nil
}

// tilemapCell is one explicit entry in a TilemapGrid.
type tilemapCell struct {
	offsetX, offsetY float64 // additional placement offset beyond the nominal grid cell
	w, h             float64 // actual footprint, may differ from the nominal tile size
	read             ReadFunc2
}

// ReadFunc2 decodes a specific tilemap cell's content.
type ReadFunc2 func() (*surface.Image, error)

// RenderMissingFunc paints a placeholder for a tilemap cell that has no
// registered entry.
type RenderMissingFunc func(s *surface.Surface, col, row int, nominalW, nominalH float64) error

// TilemapGrid is the explicit-cell grid used by formats with irregular or
// overlapping tiles. TilesAcross/TilesDown, when > 0,
// bound the missing-tile search performed by PaintRegion; a zero value
// means "unbounded" and disables missing-tile callbacks (PaintRegion then
// only visits cells that were actually added).
type TilemapGrid struct {
	TileW, TileH           float64
	TilesAcross, TilesDown int
	RenderMissing          RenderMissingFunc

	cells map[[2]int]*tilemapCell
}

// NewTilemapGrid creates an empty tilemap grid with the given nominal
// tile pitch.
func NewTilemapGrid(tileW, tileH float64) *TilemapGrid {
	return &TilemapGrid{TileW: tileW, TileH: tileH, cells: make(map[[2]int]*tilemapCell)}
}

// AddTile registers a cell at (col, row) with the given placement offset
// (beyond the nominal grid position), footprint, and decode callback.
func (g *TilemapGrid) AddTile(col, row int, offsetX, offsetY, w, h float64, read ReadFunc2) {
	g.cells[[2]int{col, row}] = &tilemapCell{offsetX: offsetX, offsetY: offsetY, w: w, h: h, read: read}
}

// Has reports whether a cell was registered at (col, row).
func (g *TilemapGrid) Has(col, row int) bool {
	_, ok := g.cells[[2]int{col, row}]
	return ok
}

// PaintRegion paints every registered cell whose footprint intersects the
// level-pixel rectangle [x, y, x+w, y+h), plus — when TilesAcross/
// TilesDown are set — invokes RenderMissing for any cell in that bounded
// range with no registered entry.
func (g *TilemapGrid) PaintRegion(s *surface.Surface, x, y, w, h float64) error {
	colStart, colEnd, rowStart, rowEnd := tileRange(x, y, w, h, g.TileW, g.TileH)
	if g.TilesAcross > 0 {
		if colStart < 0 {
			colStart = 0
		}
		if colEnd >= g.TilesAcross {
			colEnd = g.TilesAcross - 1
		}
	}
	if g.TilesDown > 0 {
		if rowStart < 0 {
			rowStart = 0
		}
		if rowEnd >= g.TilesDown {
			rowEnd = g.TilesDown - 1
		}
	}

	for row := rowStart; row <= rowEnd; row++ {
		for col := colStart; col <= colEnd; col++ {
			cell, ok := g.cells[[2]int{col, row}]
			if !ok {
				if g.RenderMissing != nil && g.TilesAcross > 0 && g.TilesDown > 0 {
					if err := g.RenderMissing(s, col, row, g.TileW, g.TileH); err != nil {
						return err
					}
				}
				continue
			}
			img, err := cell.read()
			if err != nil {
				return err
			}
			if img == nil {
				continue
			}
			px := float64(col)*g.TileW + cell.offsetX
			py := float64(row)*g.TileH + cell.offsetY
			s.PaintImage(img, px, py)
		}
	}
	return nil
}

// tileRange computes the inclusive [colStart, colEnd] × [rowStart, rowEnd]
// tile-index range intersecting [x, y, x+w, y+h) for a grid with pitch
// (tileW, tileH). Margins of one tile are added on each side to absorb
// the tilemap's sub-pixel placement offsets.
func tileRange(x, y, w, h, tileW, tileH float64) (colStart, colEnd, rowStart, rowEnd int) {
	colStart = int(floorDiv(x, tileW)) - 1
	colEnd = int(floorDiv(x+w, tileW)) + 1
	rowStart = int(floorDiv(y, tileH)) - 1
	rowEnd = int(floorDiv(y+h, tileH)) + 1
	return
}

func floorDiv(v, d float64) float64 {
	if d == 0 {
		return 0
	}
	q := v / d
	if q < 0 {
		return q - 1
	}
	return q
}
