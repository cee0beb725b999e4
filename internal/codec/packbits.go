package codec

import "github.com/pspoerri/slidepyramid/internal/slideerr"

// DecodePackBits decodes Apple/TIFF PackBits-compressed bytes (TIFF
// Compression 32773), used by some Hamamatsu and Trestle strip layouts as
// a cheap fallback when a tile's raw samples don't compress well under
// LZW. The control-byte grammar is the classic one: 0..127
// means "copy the next n+1 literal bytes", -1..-127 means "repeat the
// next byte 1-n times", and -128 is a no-op padding byte.
func DecodePackBits(src []byte, wantLen int) ([]byte, error) {
	out := make([]byte, 0, wantLen)
	i := 0
	for i < len(src) {
		n := int(int8(src[i]))
		i++
		switch {
		case n >= 0:
			end := i + n + 1
			if end > len(src) {
				return nil, slideerr.BadDataf("packbits", "Decode", "literal run overruns input")
			}
			out = append(out, src[i:end]...)
			i = end
		case n == -128:
			// no-op
		default:
			if i >= len(src) {
				return nil, slideerr.BadDataf("packbits", "Decode", "repeat run overruns input")
			}
			b := src[i]
			i++
			count := 1 - n
			for k := 0; k < count; k++ {
				out = append(out, b)
			}
		}
	}
	return out, nil
}
