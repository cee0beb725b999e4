package restart

import "testing"

type fakeSource struct{ buf []byte }

func (f fakeSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.buf)) {
		return 0, nil
	}
	n := copy(p, f.buf[off:])
	return n, nil
}

// buildMarkerStream builds a byte buffer of the given size with a 0xFF,kind
// restart marker pair placed so that it ends exactly at each of
// markerEnds[i] (i.e. bytes markerEnds[i]-2 and markerEnds[i]-1).
func buildMarkerStream(size int, markers map[int]byte) []byte {
	buf := make([]byte, size)
	for end, kind := range markers {
		buf[end-2] = 0xFF
		buf[end-1] = kind
	}
	return buf
}

// TestComputeRejectsStaleHint checks a worked restart-index example:
// offsets [100,200,305,407] are the true tile-start offsets; hints
// [-1,200,310,407] include one stale hint (310, which should be 305)
// that Compute must detect and recover from by scanning.
func TestComputeRejectsStaleHint(t *testing.T) {
	buf := buildMarkerStream(500, map[int]byte{
		200: 0xD0, // marker before tile 1
		305: 0xD1, // marker before tile 2 (true offset)
		407: 0xD2, // marker before tile 3
	})
	src := fakeSource{buf}

	hints := []int64{-1, 200, 310, 407}
	idx := NewIndex(src, 100, 480, 4, hints)

	got, err := idx.Compute(2)
	if err != nil {
		t.Fatalf("Compute(2): %v", err)
	}
	if got != 305 {
		t.Fatalf("Compute(2) = %d, want 305 (hint 310 should have been rejected)", got)
	}

	// Downstream offsets should match too.
	if got, _ := idx.Compute(1); got != 200 {
		t.Errorf("Compute(1) = %d, want 200", got)
	}
	if got, _ := idx.Compute(3); got != 407 {
		t.Errorf("Compute(3) = %d, want 407", got)
	}
	if got, _ := idx.Compute(0); got != 100 {
		t.Errorf("Compute(0) = %d, want 100", got)
	}
}

func TestComputeIdempotent(t *testing.T) {
	buf := buildMarkerStream(300, map[int]byte{150: 0xD0})
	idx := NewIndex(fakeSource{buf}, 100, 280, 2, nil)

	first, err := idx.Compute(1)
	if err != nil {
		t.Fatalf("Compute(1): %v", err)
	}
	second, err := idx.Compute(1)
	if err != nil {
		t.Fatalf("Compute(1) again: %v", err)
	}
	if first != second || first != 150 {
		t.Errorf("got %d then %d, want 150 both times", first, second)
	}
}

func TestComputeOutOfRange(t *testing.T) {
	idx := NewIndex(fakeSource{make([]byte, 10)}, 0, 10, 2, nil)
	if _, err := idx.Compute(5); err == nil {
		t.Fatal("expected out-of-range error")
	}
}
