package codec

import "testing"

func TestDecodePackBitsLiteralAndRepeat(t *testing.T) {
	// [2, 'a','b','c'] -> "abc" (literal run of 3), then [-2, 'x'] -> "xxx" (repeat x3).
	src := []byte{2, 'a', 'b', 'c', byte(int8(-2)), 'x'}
	got, err := DecodePackBits(src, 6)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := "abcxxx"
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDecodePackBitsNoOpByte(t *testing.T) {
	src := []byte{byte(int8(-128)), 0, 'z'}
	got, err := DecodePackBits(src, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(got) != "z" {
		t.Errorf("got %q, want %q", got, "z")
	}
}
