package surface

import "testing"

func TestFillAndEncode(t *testing.T) {
	s := NewOffscreen(2, 2)
	s.Fill(ARGB(0xFF, 0x11, 0x22, 0x33))

	buf := EncodeRowMajor(s.Image)
	if len(buf) != 2*2*4 {
		t.Fatalf("expected %d bytes, got %d", 2*2*4, len(buf))
	}
	if buf[0] != 0xFF || buf[1] != 0x11 || buf[2] != 0x22 || buf[3] != 0x33 {
		t.Errorf("unexpected first pixel bytes: % x", buf[:4])
	}
}

func TestPaintImageOverOpaqueReplaces(t *testing.T) {
	s := NewOffscreen(4, 4)
	s.Fill(ARGB(0xFF, 0, 0, 0))
	s.SetOrigin(0, 0)

	tile := NewImage(2, 2)
	for i := range tile.Pix {
		tile.Pix[i] = ARGB(0xFF, 0xAA, 0xBB, 0xCC)
	}

	s.PaintImage(tile, 1, 1)

	if got := s.Image.At(1, 1); got != ARGB(0xFF, 0xAA, 0xBB, 0xCC) {
		t.Errorf("expected opaque tile to replace destination, got %#x", got)
	}
	if got := s.Image.At(0, 0); got != ARGB(0xFF, 0, 0, 0) {
		t.Errorf("expected untouched background at (0,0), got %#x", got)
	}
}

func TestPaintImageClipsToSurface(t *testing.T) {
	s := NewOffscreen(2, 2)
	tile := NewImage(4, 4)
	for i := range tile.Pix {
		tile.Pix[i] = ARGB(0xFF, 1, 2, 3)
	}
	// Should not panic despite the tile overhanging the surface on all sides.
	s.PaintImage(tile, -1, -1)
	if s.Image.At(0, 0) != ARGB(0xFF, 1, 2, 3) {
		t.Errorf("expected clipped paint to still cover (0,0)")
	}
}

func TestSaturateBlendClamps(t *testing.T) {
	s := NewOffscreen(1, 1)
	s.Image.Set(0, 0, ARGB(0x80, 0xF0, 0xF0, 0xF0))
	s.SetOperator(Saturate)

	tile := NewImage(1, 1)
	tile.Set(0, 0, ARGB(0x80, 0x20, 0x20, 0x20))

	s.PaintImage(tile, 0, 0)

	got := s.Image.At(0, 0)
	if (got>>16)&0xff != 0xff || (got>>8)&0xff != 0xff || got&0xff != 0xff {
		t.Errorf("expected channels to saturate at 255, got %#x", got)
	}
}
