// Package surface implements the minimal 2-D drawing surface the region
// painter needs: offscreen ARGB32 buffers, a translate-only transform
// stack (the painter never needs scale or rotate — downsampling is done
// by the grid reader, not by the surface), over and SATURATE compositing,
// and solid-color rectangle fill.
//
// No Cairo/Skia binding exists anywhere in the retrieval pack, so this is
// a small pure-Go rasterizer. It is grounded on the tile-to-destination
// blit loop in cog.Reader.ReadRegion (internal/cog/reader.go), which
// computes per-tile source/destination overlap rectangles and copies RGBA
// samples — generalized here from "always a whole tile at its natural
// grid position" to "a tile at an arbitrary sub-pixel placement,
// composited with a selectable operator".
package surface

// Pixel is one ARGB32 sample packed as 0xAARRGGBB, the packing convention
// for decoded codec output throughout this module.
type Pixel = uint32

// Operator selects how a painted image combines with what is already on
// the surface.
type Operator int

const (
	// Over is standard alpha-over compositing (the default).
	Over Operator = iota
	// Saturate adds contributions clamped at full intensity, used by the
	// tiled-TIFF backend's recursive missing-tile fill so that the
	// finer-level fill and the seam-extension pixels combine without
	// one fully replacing the other at tile boundaries.
	Saturate
)

// Image is a decoded ARGB32 tile or region buffer.
type Image struct {
	Pix    []Pixel
	W, H   int
	Stride int // in pixels; normally == W
}

// NewImage allocates a W×H offscreen image filled with transparent black.
func NewImage(w, h int) *Image {
	return &Image{Pix: make([]Pixel, w*h), W: w, H: h, Stride: w}
}

// At returns the pixel at (x, y), or 0 if out of bounds.
func (img *Image) At(x, y int) Pixel {
	if x < 0 || y < 0 || x >= img.W || y >= img.H {
		return 0
	}
	return img.Pix[y*img.Stride+x]
}

// Set writes the pixel at (x, y) if in bounds.
func (img *Image) Set(x, y int, p Pixel) {
	if x < 0 || y < 0 || x >= img.W || y >= img.H {
		return
	}
	img.Pix[y*img.Stride+x] = p
}

// Surface is a drawing destination with a translate-only current
// transform: SourceOrigin gives, in the surface's own pixel coordinates,
// where level-pixel (0, 0) would land. Painting an Image at level-pixel
// position (px, py) therefore writes into the surface at
// (px - originX, py - originY), clipped to the surface bounds — this is
// precisely "translate the surface origin by (−x/ds, −y/ds)" applied to a
// region read.
type Surface struct {
	Image    *Image
	originX  float64
	originY  float64
	operator Operator
}

// NewOffscreen creates a w×h ARGB32 surface, initially untranslated.
func NewOffscreen(w, h int) *Surface {
	return &Surface{Image: NewImage(w, h)}
}

// FromExternal wraps an existing external ARGB32 buffer (row-major,
// stride w) as a surface, matching the layout the caller's destination
// buffer is required to use.
func FromExternal(pix []Pixel, w, h int) *Surface {
	return &Surface{Image: &Image{Pix: pix, W: w, H: h, Stride: w}}
}

// Translate sets the surface's current transform so that level-pixel
// (dx, dy) maps to surface-pixel (0, 0). Equivalent to cairo's
// cairo_translate on a surface whose CTM starts at identity: repeated
// calls are relative, as with a transform stack's Translate.
func (s *Surface) Translate(dx, dy float64) {
	s.originX -= dx
	s.originY -= dy
}

// SetOrigin pins the absolute origin directly (used by the painter, which
// computes the translation once per read_region call rather than
// incrementally).
func (s *Surface) SetOrigin(x, y float64) {
	s.originX = x
	s.originY = y
}

// SetOperator selects the compositing operator for subsequent Paint calls.
func (s *Surface) SetOperator(op Operator) { s.operator = op }

// FillRect fills the rectangle [x, y, x+w, y+h) in surface coordinates
// with a solid color, clipped to the surface bounds.
func (s *Surface) FillRect(x, y, w, h int, color Pixel) {
	x0, y0, x1, y1 := clipRect(x, y, x+w, y+h, s.Image.W, s.Image.H)
	for yy := y0; yy < y1; yy++ {
		row := yy * s.Image.Stride
		for xx := x0; xx < x1; xx++ {
			s.Image.Pix[row+xx] = color
		}
	}
}

// Fill fills the entire surface with a solid color, e.g. to pre-fill
// dest_buffer with the configured background color before painting.
func (s *Surface) Fill(color Pixel) {
	for i := range s.Image.Pix {
		s.Image.Pix[i] = color
	}
}

// PaintImage composites src onto the surface at level-pixel position
// (px, py) (i.e. surface position (px-originX, py-originY)), clipped to
// both the surface and src bounds, using the surface's current operator.
func (s *Surface) PaintImage(src *Image, px, py float64) {
	dstX := int(px - s.originX)
	dstY := int(py - s.originY)

	x0, y0, x1, y1 := clipRect(dstX, dstY, dstX+src.W, dstY+src.H, s.Image.W, s.Image.H)
	for yy := y0; yy < y1; yy++ {
		sy := yy - dstY
		srow := sy * src.Stride
		drow := yy * s.Image.Stride
		for xx := x0; xx < x1; xx++ {
			sx := xx - dstX
			sp := src.Pix[srow+sx]
			switch s.operator {
			case Saturate:
				s.Image.Pix[drow+xx] = saturateBlend(s.Image.Pix[drow+xx], sp)
			default:
				s.Image.Pix[drow+xx] = over(s.Image.Pix[drow+xx], sp)
			}
		}
	}
}

func clipRect(x0, y0, x1, y1, w, h int) (int, int, int, int) {
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > w {
		x1 = w
	}
	if y1 > h {
		y1 = h
	}
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return x0, y0, x1, y1
}

// over composites src above dst using straight (non-premultiplied) alpha.
func over(dst, src Pixel) Pixel {
	sa := (src >> 24) & 0xff
	if sa == 0xff {
		return src
	}
	if sa == 0 {
		return dst
	}
	sr, sg, sb := (src>>16)&0xff, (src>>8)&0xff, src&0xff
	da, dr, dg, db := (dst>>24)&0xff, (dst>>16)&0xff, (dst>>8)&0xff, dst&0xff

	outA := sa + da*(255-sa)/255
	blend := func(s, d uint32) uint32 {
		return (s*sa + d*da*(255-sa)/255) / max1(outA)
	}
	return (outA << 24) | (blend(sr, dr) << 16) | (blend(sg, dg) << 8) | blend(sb, db)
}

// saturateBlend adds src onto dst with each channel clamped at 255,
// matching cairo's CAIRO_OPERATOR_SATURATE used by the recursive
// missing-tile fill to blend a finer-level fill with the seam-extension
// overdraw without either fully occluding the other.
func saturateBlend(dst, src Pixel) Pixel {
	sa, sr, sg, sb := (src>>24)&0xff, (src>>16)&0xff, (src>>8)&0xff, src&0xff
	da, dr, dg, db := (dst>>24)&0xff, (dst>>16)&0xff, (dst>>8)&0xff, dst&0xff
	add := func(a, b uint32) uint32 {
		v := a + b
		if v > 255 {
			v = 255
		}
		return v
	}
	return (add(sa, da) << 24) | (add(sr, dr) << 16) | (add(sg, dg) << 8) | add(sb, db)
}

func max1(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	return v
}

// ARGB packs 8-bit components into a Pixel.
func ARGB(a, r, g, b uint8) Pixel {
	return Pixel(a)<<24 | Pixel(r)<<16 | Pixel(g)<<8 | Pixel(b)
}

// EncodeRowMajor writes img as row-major ARGB32 bytes (4 bytes per pixel,
// big-endian A,R,G,B) into the exactly-sized destination buffer required
// by the public read_region interface.
func EncodeRowMajor(img *Image) []byte {
	out := make([]byte, img.W*img.H*4)
	i := 0
	for y := 0; y < img.H; y++ {
		row := y * img.Stride
		for x := 0; x < img.W; x++ {
			p := img.Pix[row+x]
			out[i] = byte(p >> 24)
			out[i+1] = byte(p >> 16)
			out[i+2] = byte(p >> 8)
			out[i+3] = byte(p)
			i += 4
		}
	}
	return out
}
