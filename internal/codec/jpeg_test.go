package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeJPEGAcceptsYCbCr(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			src.SetRGBA(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	out, err := DecodeJPEG(encodeJPEG(t, src), nil)
	if err != nil {
		t.Fatalf("DecodeJPEG: %v", err)
	}
	if out.W != 8 || out.H != 8 {
		t.Errorf("got %dx%d, want 8x8", out.W, out.H)
	}
}

func TestDecodeJPEGRejectsGrayscale(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 4, 4))
	if _, err := DecodeJPEG(encodeJPEG(t, src), nil); err == nil {
		t.Fatal("expected error decoding a 1-component grayscale JPEG")
	}
}

func TestDecodeJPEGRejectsCMYK(t *testing.T) {
	src := image.NewCMYK(image.Rect(0, 0, 4, 4))
	if _, err := DecodeJPEG(encodeJPEG(t, src), nil); err == nil {
		t.Fatal("expected error decoding a 4-component CMYK JPEG")
	}
}
