package codec

import (
	"github.com/pspoerri/slidepyramid/internal/slideerr"
	"github.com/pspoerri/slidepyramid/internal/surface"
)

// Component is one decoded JPEG-2000 component plane: three planes arrive
// with per-component dimensions once the codestream's entropy coding has
// been undone. Each sample is stored as its native bit depth
// right-justified in a uint16; W/H describe this component's own sampling
// grid, which for chroma-subsampled images is coarser than the luma
// plane's.
type Component struct {
	W, H int
	Data []uint16
}

// ColorSpace selects how three decoded component planes recombine into
// ARGB. Aperio's tiled JPEG-2000 directories use TIFF Compression values
// 33003 (YCbCr) and 33005 (RGB) to say which applies.
type ColorSpace int

const (
	ColorSpaceYCbCr ColorSpace = iota
	ColorSpaceRGB
)

// DecodeJPEG2000Components recombines three already-decoded component
// planes into an ARGB32 image.
//
// This adapter's scope is the colorspace/subsampling recombination stage:
// the entropy-coded bitstream itself (wavelet transform, EBCOT tier-1/
// tier-2 coding, packet parsing) is decoded upstream by
// github.com/mrjoshuak/go-jpeg2000 in tiledtiff.decodeJP2K, which hands
// this function the resulting component planes.
//
// Two fast paths mirror OpenSlide's own Aperio JP2K tile reader: 4:2:2-like
// chroma subsampling (each chroma sample covers a 2x1 luma block) and 1:1
// RGB. Arbitrary subsampling falls back to nearest-neighbor upsampling.
func DecodeJPEG2000Components(y, cb, cr Component, cs ColorSpace) (*surface.Image, error) {
	if cs == ColorSpaceRGB {
		return decodeRGBComponents(y, cb, cr)
	}
	if y.W == 0 || y.H == 0 {
		return nil, slideerr.BadDataf("jpeg2000", "DecodeComponents", "empty luma plane")
	}
	if cb.W == y.W/2 && cb.H == y.H && cr.W == y.W/2 && cr.H == y.H {
		return decodeYCbCr422(y, cb, cr)
	}
	return decodeYCbCrGeneric(y, cb, cr)
}

func decodeRGBComponents(r, g, b Component) (*surface.Image, error) {
	if r.W != g.W || r.W != b.W || r.H != g.H || r.H != b.H {
		return nil, slideerr.BadDataf("jpeg2000", "DecodeComponents", "RGB component planes have mismatched dimensions")
	}
	out := surface.NewImage(r.W, r.H)
	for i := range out.Pix {
		out.Pix[i] = surface.ARGB(0xFF, sample8(r.Data[i]), sample8(g.Data[i]), sample8(b.Data[i]))
	}
	return out, nil
}

// decodeYCbCr422 is the fast path for the common Aperio layout: each chroma
// sample covers a horizontal pair of luma samples (chroma plane is half
// width, full height). BT.601 fixed-point coefficients match the ones
// image/color.YCbCrToRGB uses in the standard library.
func decodeYCbCr422(y, cb, cr Component) (*surface.Image, error) {
	out := surface.NewImage(y.W, y.H)
	for row := 0; row < y.H; row++ {
		for col := 0; col < y.W; col++ {
			cCol := col / 2
			yv := sample8(y.Data[row*y.W+col])
			cbv := sample8(cb.Data[row*cb.W+cCol])
			crv := sample8(cr.Data[row*cr.W+cCol])
			r, g, b := ycbcrToRGB(yv, cbv, crv)
			out.Pix[row*y.W+col] = surface.ARGB(0xFF, r, g, b)
		}
	}
	return out, nil
}

// decodeYCbCrGeneric handles arbitrary component subsampling ratios via
// nearest-neighbor chroma upsampling.
func decodeYCbCrGeneric(y, cb, cr Component) (*surface.Image, error) {
	if cb.W == 0 || cb.H == 0 || cr.W == 0 || cr.H == 0 {
		return nil, slideerr.BadDataf("jpeg2000", "DecodeComponents", "empty chroma plane")
	}
	out := surface.NewImage(y.W, y.H)
	for row := 0; row < y.H; row++ {
		cRow := row * cb.H / y.H
		for col := 0; col < y.W; col++ {
			cCol := col * cb.W / y.W
			yv := sample8(y.Data[row*y.W+col])
			cbv := sample8(cb.Data[cRow*cb.W+cCol])
			crv := sample8(cr.Data[cRow*cr.W+cCol])
			r, g, b := ycbcrToRGB(yv, cbv, crv)
			out.Pix[row*y.W+col] = surface.ARGB(0xFF, r, g, b)
		}
	}
	return out, nil
}

// sample8 right-shifts a component sample of unspecified bit depth down to
// 8 bits; microscopy JPEG-2000 tiles are overwhelmingly 8-bit-per-component
// already, so this is a no-op in the common case.
func sample8(v uint16) uint8 {
	if v > 0xFF {
		return uint8(v >> 8)
	}
	return uint8(v)
}

// ycbcrToRGB applies the BT.601 fixed-point conversion (same coefficients
// as image/color.YCbCrToRGB in the Go standard library).
func ycbcrToRGB(y, cb, cr uint8) (uint8, uint8, uint8) {
	yy := int32(y) * 0x10101
	cb32 := int32(cb) - 128
	cr32 := int32(cr) - 128

	r := yy + 91881*cr32
	g := yy - 22554*cb32 - 46802*cr32
	b := yy + 116130*cb32

	return clamp8(r), clamp8(g), clamp8(b)
}

func clamp8(v int32) uint8 {
	v >>= 16
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
