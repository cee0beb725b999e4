package codec

import "testing"

// TestDecodeYCbCr422FastPath checks the 4:2:2 fast path directly: a
// uniform luma plane of 0x10 with neutral (0x80) chroma must decode to
// solid 0xFF101010 ARGB pixels.
func TestDecodeYCbCr422FastPath(t *testing.T) {
	y := Component{W: 4, H: 2, Data: make([]uint16, 8)}
	for i := range y.Data {
		y.Data[i] = 0x10
	}
	cb := Component{W: 2, H: 2, Data: make([]uint16, 4)}
	cr := Component{W: 2, H: 2, Data: make([]uint16, 4)}
	for i := range cb.Data {
		cb.Data[i] = 0x80
		cr.Data[i] = 0x80
	}

	img, err := DecodeJPEG2000Components(y, cb, cr, ColorSpaceYCbCr)
	if err != nil {
		t.Fatalf("DecodeJPEG2000Components: %v", err)
	}
	for i, p := range img.Pix {
		if p != 0xFF101010 {
			t.Fatalf("pixel %d = %#x, want 0xFF101010", i, p)
		}
	}
}

func TestDecodeRGBComponents(t *testing.T) {
	r := Component{W: 1, H: 1, Data: []uint16{0xAA}}
	g := Component{W: 1, H: 1, Data: []uint16{0xBB}}
	b := Component{W: 1, H: 1, Data: []uint16{0xCC}}
	img, err := DecodeJPEG2000Components(r, g, b, ColorSpaceRGB)
	if err != nil {
		t.Fatalf("DecodeJPEG2000Components: %v", err)
	}
	if img.Pix[0] != 0xFFAABBCC {
		t.Errorf("got %#x, want 0xFFAABBCC", img.Pix[0])
	}
}

func TestDecodeYCbCrGenericArbitrarySubsampling(t *testing.T) {
	y := Component{W: 4, H: 4, Data: make([]uint16, 16)}
	for i := range y.Data {
		y.Data[i] = 0x10
	}
	cb := Component{W: 1, H: 1, Data: []uint16{0x80}}
	cr := Component{W: 1, H: 1, Data: []uint16{0x80}}

	img, err := DecodeJPEG2000Components(y, cb, cr, ColorSpaceYCbCr)
	if err != nil {
		t.Fatalf("DecodeJPEG2000Components: %v", err)
	}
	for i, p := range img.Pix {
		if p != 0xFF101010 {
			t.Fatalf("pixel %d = %#x, want 0xFF101010", i, p)
		}
	}
}
