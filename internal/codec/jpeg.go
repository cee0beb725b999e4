// Package codec adapts third-party/stdlib image codecs to the ARGB32
// surface.Image shape the grid and painter packages operate on: a codec
// adapter takes compressed tile bytes and produces a surface-ready ARGB
// buffer.
//
// This package dispatches by format the same way internal/encode's output
// side does — image/jpeg, image/png, or a CGo WebP binding — but converts
// the result into surface.Image instead of leaving it as an image.Image,
// since the grid/painter packages composite ARGB32 buffers directly
// rather than going through the image.Image interface.
package codec

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/pspoerri/slidepyramid/internal/slideerr"
	"github.com/pspoerri/slidepyramid/internal/surface"
)

// DecodeJPEG decodes baseline/progressive JPEG tile bytes into an ARGB32
// image. When tables is non-empty it is a standalone JPEGTables entry
// (TIFF tag 347) that must be prepended ahead of the per-tile scan data,
// as Aperio's "new-style JPEG" (TIFF Compression 7) tiles carry shared
// quantization/Huffman tables once per directory rather than once per
// tile. Only 3-component (YCbCr) JPEGs are accepted; grayscale and CMYK
// tiles are rejected rather than silently reinterpreted as RGB.
func DecodeJPEG(data, tables []byte) (*surface.Image, error) {
	full := data
	if len(tables) > 0 {
		full = spliceJPEGTables(tables, data)
	}
	img, err := jpeg.Decode(bytes.NewReader(full))
	if err != nil {
		return nil, slideerr.Decodef("jpeg", "Decode", "%v", err)
	}
	if err := requireThreeComponents(img); err != nil {
		return nil, err
	}
	return fromStdlibImage(img), nil
}

// requireThreeComponents rejects a decoded JPEG whose component count
// isn't 3: the standard library's decoder returns a distinct concrete
// type per component layout (*image.YCbCr for 3-component, *image.Gray
// for 1-component grayscale, *image.CMYK for 4-component CMYK/YCCK), so
// the layout is read off that type rather than re-parsing the JPEG's own
// SOF marker.
func requireThreeComponents(img image.Image) error {
	switch img.(type) {
	case *image.YCbCr:
		return nil
	default:
		return slideerr.BadDataf("jpeg", "Decode", "unsupported JPEG component layout %T, only 3-component YCbCr is accepted", img)
	}
}

// spliceJPEGTables drops the tables stream's trailing EOI (0xFFD9) and the
// per-tile stream's leading SOI (0xFFD8), concatenating so the combined
// stream has exactly one SOI, the shared tables, the tile's own SOF/SOS
// and scan data, and one EOI.
func spliceJPEGTables(tables, tile []byte) []byte {
	t := tables
	if len(t) >= 2 && t[len(t)-2] == 0xFF && t[len(t)-1] == 0xD9 {
		t = t[:len(t)-2]
	}
	rest := tile
	if len(rest) >= 2 && rest[0] == 0xFF && rest[1] == 0xD8 {
		rest = rest[2:]
	}
	out := make([]byte, 0, len(t)+len(rest))
	out = append(out, t...)
	out = append(out, rest...)
	return out
}

// FromImage converts any image.Image into a surface.Image, used by every
// adapter that leans on a stdlib or third-party decoder returning the
// standard interface (e.g. golang.org/x/image/ccitt's fax decoder).
func FromImage(img image.Image) *surface.Image {
	return fromStdlibImage(img)
}

// fromStdlibImage converts any image.Image into a surface.Image, used by
// every adapter that leans on a stdlib or third-party decoder returning
// the standard interface.
func fromStdlibImage(img image.Image) *surface.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := surface.NewImage(w, h)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			out.Pix[i] = surface.ARGB(uint8(a>>8), uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			i++
		}
	}
	return out
}
