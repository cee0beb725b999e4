// Package restart implements the JPEG restart-marker offset index the
// Hamamatsu-style mosaic backend uses to carve one giant multi-tile JPEG
// stream into individually addressable tiles: restart
// markers (the two-byte sequence 0xFF 0xD0..0xFF 0xD7, cycling every 8)
// delimit independently decodable entropy-coded segments, and tile n's
// scan data begins right after the n-th restart marker.
//
// Grounded conceptually on the restart-marker resynchronization logic in
// the pack's dlecorfec-progjpeg scan decoder (other_examples,
// d3d6c450_dlecorfec-progjpeg__scan.go.go's findRST-style marker scan),
// adapted here from "resync a single streaming decode after marker loss"
// to "build and cache a random-access offset table keyed by tile index".
package restart

import (
	"io"
	"sync"

	"github.com/pspoerri/slidepyramid/internal/slideerr"
)

// Index lazily computes and caches, per tile index, the byte offset of
// that tile's entropy-coded data within the underlying JPEG source.
// Offset 0 is never a valid tile offset (every tile lies after the JPEG
// header), so -1 marks "not yet computed".
//
// mu guards offsets: a foreground TileSource.Tile call and the background
// Worker's indexing walk can both reach the same tile index concurrently,
// and Compute's recursive fill-in-earlier-tiles walk mutates offsets in
// place, so every read or write of it happens with mu held.
type Index struct {
	r         io.ReaderAt
	dataStart int64 // offset of tile 0's scan data (right after SOS)
	dataEnd   int64 // exclusive end of the last tile's scan data

	mu      sync.Mutex
	offsets []int64
	// hints optionally records externally supplied candidate offsets
	// (e.g. recovered from a vendor .vms/.opt hint file) that, if still
	// valid, let Compute skip the scan entirely. A hint of -1 means "no
	// hint for this tile". Hints are never trusted blindly: a hint is
	// always verified against the actual marker bytes before being
	// accepted, since hint files can go stale relative to the physical
	// file.
	hints []int64
}

// NewIndex creates an index over tileCount tiles whose scan data begins
// at dataStart and ends (exclusive) at dataEnd. hints may be nil.
func NewIndex(r io.ReaderAt, dataStart, dataEnd int64, tileCount int, hints []int64) *Index {
	offsets := make([]int64, tileCount)
	for i := range offsets {
		offsets[i] = -1
	}
	if tileCount > 0 {
		offsets[0] = dataStart
	}
	if hints == nil {
		hints = make([]int64, tileCount)
		for i := range hints {
			hints[i] = -1
		}
	}
	return &Index{r: r, dataStart: dataStart, dataEnd: dataEnd, offsets: offsets, hints: hints}
}

// Compute returns the byte offset of tile t's scan data, computing and
// caching it (and any earlier uncomputed tiles it depends on) if
// necessary. Computation is idempotent: calling Compute(t) twice performs
// the scan at most once. Compute takes idx's exclusive lock for the
// duration of the call, so concurrent callers (foreground reads, the
// background worker) serialize rather than racing on offsets.
func (idx *Index) Compute(t int) (int64, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.computeLocked(t)
}

// TryCompute is Compute's non-blocking counterpart: if idx's lock is
// currently held by another goroutine, it returns immediately with
// ok=false instead of waiting. The background worker uses this so its
// indexing walk never blocks a concurrent foreground read.
func (idx *Index) TryCompute(t int) (offset int64, ok bool, err error) {
	if !idx.mu.TryLock() {
		return 0, false, nil
	}
	defer idx.mu.Unlock()
	off, err := idx.computeLocked(t)
	return off, true, err
}

// computeLocked is Compute's body, run with idx.mu already held.
func (idx *Index) computeLocked(t int) (int64, error) {
	if t < 0 || t >= len(idx.offsets) {
		return 0, slideerr.BadDataf("restart", "Compute", "tile index %d out of range [0,%d)", t, len(idx.offsets))
	}
	if idx.offsets[t] >= 0 {
		return idx.offsets[t], nil
	}

	prev, err := idx.computeLocked(t - 1)
	if err != nil {
		return 0, err
	}

	markerKind := byte(0xD0 + (t-1)%8)

	if h := idx.hints[t]; h >= 0 && h > prev {
		ok, err := idx.verifyMarkerBefore(h, markerKind)
		if err != nil {
			return 0, err
		}
		if ok {
			idx.offsets[t] = h
			return h, nil
		}
	}

	off, err := idx.scanForMarker(prev, markerKind)
	if err != nil {
		return 0, err
	}
	idx.offsets[t] = off
	return off, nil
}

// verifyMarkerBefore reports whether offset-2 and offset-1 hold a valid
// 0xFF markerKind restart marker, i.e. whether offset is a plausible start
// of a tile's scan data.
func (idx *Index) verifyMarkerBefore(offset int64, markerKind byte) (bool, error) {
	if offset < 2 {
		return false, nil
	}
	var buf [2]byte
	if _, err := idx.r.ReadAt(buf[:], offset-2); err != nil {
		return false, slideerr.IOf("restart", "verifyMarkerBefore", err)
	}
	return buf[0] == 0xFF && buf[1] == markerKind, nil
}

const scanChunkSize = 4096

// scanForMarker scans forward from a known-good offset searching for the
// next occurrence of 0xFF markerKind, returning the offset immediately
// following the two marker bytes.
func (idx *Index) scanForMarker(from int64, markerKind byte) (int64, error) {
	buf := make([]byte, scanChunkSize)
	pos := from
	for pos < idx.dataEnd {
		n := scanChunkSize
		if remaining := idx.dataEnd - pos; int64(n) > remaining {
			n = int(remaining)
		}
		read, err := idx.r.ReadAt(buf[:n], pos)
		if err != nil && err != io.EOF {
			return 0, slideerr.IOf("restart", "scanForMarker", err)
		}
		for i := 0; i+1 < read; i++ {
			if buf[i] == 0xFF && buf[i+1] == markerKind {
				return pos + int64(i) + 2, nil
			}
		}
		pos += int64(read) - 1 // back off one byte in case a marker straddles the chunk boundary
		if read == 0 {
			break
		}
	}
	return 0, slideerr.BadDataf("restart", "scanForMarker", "no restart marker 0xFF%02X found after offset %d", markerKind, from)
}

// TileCount reports how many tiles this index covers.
func (idx *Index) TileCount() int { return len(idx.offsets) }
