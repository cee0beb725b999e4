package codec

import (
	"bytes"
	"testing"
)

// TestDecodeTIFFLZWSingleLiteral decodes a hand-built minimal stream:
// clear code (256), literal 'A' (65), end-of-information code (257), each
// as a 9-bit MSB-first code, padded to a whole number of bytes.
func TestDecodeTIFFLZWSingleLiteral(t *testing.T) {
	data := []byte{0x80, 0x10, 0x60, 0x20}
	got, err := DecodeTIFFLZW(data)
	if err != nil {
		t.Fatalf("DecodeTIFFLZW: %v", err)
	}
	if !bytes.Equal(got, []byte{'A'}) {
		t.Fatalf("got %v, want %v", got, []byte{'A'})
	}
}

func TestDecodeTIFFLZWEmpty(t *testing.T) {
	got, err := DecodeTIFFLZW(nil)
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil for empty input, got %v, %v", got, err)
	}
}

func TestDecodeTIFFLZWRejectsMissingClearCode(t *testing.T) {
	// Single 9-bit code of value 0, never a valid first code.
	if _, err := DecodeTIFFLZW([]byte{0x00, 0x00}); err == nil {
		t.Fatal("expected error when stream does not start with a clear code")
	}
}
