package restart

// TileSource synthesizes a standalone, independently decodable JPEG byte
// stream for one tile of a restart-marker-delimited mosaic: the shared
// header (everything up to and including SOS) that every tile
// needs, followed by that tile's own entropy-coded scan bytes, followed by
// a synthetic end-of-image marker the original stream never had at that
// position (only the very last tile in the real file is followed by a
// real EOI; every other tile boundary is a restart marker instead, which
// a standalone decoder would reject as a truncated stream without this
// synthesized EOI).
type TileSource struct {
	Header []byte // file bytes from SOI through SOS, shared by every tile
	idx    *Index
	reader tileByteReader
}

type tileByteReader interface {
	ReadAt(p []byte, off int64) (int, error)
}

// NewTileSource pairs a shared header with the offset index and the
// underlying file reader the header and tile bytes are drawn from.
func NewTileSource(header []byte, idx *Index, r tileByteReader) *TileSource {
	return &TileSource{Header: header, idx: idx, reader: r}
}

// synthesizedEOI is the standard JPEG end-of-image marker.
var synthesizedEOI = []byte{0xFF, 0xD9}

// Tile returns a complete, standalone JPEG byte stream for tile t.
func (s *TileSource) Tile(t int) ([]byte, error) {
	start, err := s.idx.Compute(t)
	if err != nil {
		return nil, err
	}

	var end int64
	if t+1 < s.idx.TileCount() {
		next, err := s.idx.Compute(t + 1)
		if err != nil {
			return nil, err
		}
		// Exclude the two-byte restart marker that precedes tile t+1's
		// data; Compute returns the offset right after that marker, so
		// back off by 2 to land on the marker's own first byte.
		end = next - 2
	} else {
		end = s.idx.dataEnd
	}

	scanLen := end - start
	if scanLen < 0 {
		scanLen = 0
	}
	scan := make([]byte, scanLen)
	if _, err := s.reader.ReadAt(scan, start); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(s.Header)+len(scan)+len(synthesizedEOI))
	out = append(out, s.Header...)
	out = append(out, scan...)
	out = append(out, synthesizedEOI...)
	return out, nil
}
