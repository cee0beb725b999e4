package codec

// DecodeTIFFLZW decodes TIFF-flavor LZW-compressed tile/strip bytes.
//
// TIFF's LZW variant differs from the GIF/PDF variant compress/lzw
// implements: TIFF defers the code-width increment until after the code
// that fills the current width has been emitted, where GIF increments
// before. That mismatch makes the stdlib decoder reject real TIFF LZW
// streams with "invalid code", so this package carries its own decoder
// following the TIFF 6.0 specification, adapted from internal/cog/lzw.go
// (same deferred-increment algorithm, restructured here to return
// slideerr-wrapped errors instead of bare ones so tiled-TIFF callers get
// a Decode error kind).

import (
	"io"

	"github.com/pspoerri/slidepyramid/internal/slideerr"
)

const (
	lzwMaxCodeWidth = 12
	lzwClearCode    = 256
	lzwEOICode      = 257
	lzwFirstCode    = 258
	lzwTableSize    = 4097
)

type lzwTableEntry struct {
	prefix int
	suffix byte
	length int
}

// DecodeTIFFLZW decompresses data as TIFF-style LZW (MSB-first bit packing).
func DecodeTIFFLZW(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := &lzwBitReader{src: data}
	out, err := dec.decode()
	if err != nil {
		return nil, slideerr.Decodef("lzw", "Decode", "%v", err)
	}
	return out, nil
}

type lzwBitReader struct {
	src    []byte
	bitPos int
}

func (d *lzwBitReader) readBits(n int) (int, error) {
	result := 0
	for i := 0; i < n; i++ {
		bytePos := d.bitPos / 8
		if bytePos >= len(d.src) {
			return 0, io.ErrUnexpectedEOF
		}
		bitOff := 7 - (d.bitPos % 8)
		bit := (int(d.src[bytePos]) >> bitOff) & 1
		result = (result << 1) | bit
		d.bitPos++
	}
	return result, nil
}

func (d *lzwBitReader) decode() ([]byte, error) {
	table := make([]lzwTableEntry, lzwTableSize)
	for i := 0; i < 256; i++ {
		table[i] = lzwTableEntry{prefix: -1, suffix: byte(i), length: 1}
	}

	nextCode := lzwFirstCode
	codeWidth := 9
	var output []byte
	buf := make([]byte, 0, 4096)

	getString := func(code int) []byte {
		e := &table[code]
		buf = buf[:e.length]
		idx := e.length - 1
		for code >= 0 {
			entry := &table[code]
			buf[idx] = entry.suffix
			idx--
			code = entry.prefix
		}
		return buf
	}

	first, err := d.readBits(codeWidth)
	if err != nil {
		return nil, err
	}
	if first != lzwClearCode {
		return nil, errNotClearCode
	}

	prevCode := -1
	for {
		code, err := d.readBits(codeWidth)
		if err != nil {
			if err == io.ErrUnexpectedEOF {
				return output, nil
			}
			return nil, err
		}

		switch {
		case code == lzwEOICode:
			return output, nil
		case code == lzwClearCode:
			nextCode = lzwFirstCode
			codeWidth = 9
			prevCode = -1
			continue
		case prevCode == -1:
			if code >= 256 {
				return nil, errFirstCodeNotLiteral
			}
			output = append(output, byte(code))
			prevCode = code
			continue
		}

		switch {
		case code < nextCode:
			s := getString(code)
			output = append(output, s...)
			if nextCode < lzwTableSize {
				table[nextCode] = lzwTableEntry{prefix: prevCode, suffix: s[0], length: table[prevCode].length + 1}
				nextCode++
			}
		case code == nextCode:
			prevStr := getString(prevCode)
			firstByte := prevStr[0]
			output = append(output, prevStr...)
			output = append(output, firstByte)
			if nextCode < lzwTableSize {
				table[nextCode] = lzwTableEntry{prefix: prevCode, suffix: firstByte, length: table[prevCode].length + 1}
				nextCode++
			}
		default:
			return nil, errInvalidCode
		}

		if nextCode+1 >= (1<<codeWidth) && codeWidth < lzwMaxCodeWidth {
			codeWidth++
		}
		prevCode = code
	}
}

type lzwError string

func (e lzwError) Error() string { return string(e) }

const (
	errNotClearCode        = lzwError("lzw: first code is not a clear code")
	errFirstCodeNotLiteral = lzwError("lzw: first code after clear is not a literal")
	errInvalidCode         = lzwError("lzw: invalid code")
)
