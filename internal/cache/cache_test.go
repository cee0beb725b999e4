package cache

import "testing"

// TestEvictionLRU checks the standard LRU scenario: budget of 3 equal-size
// entries; put(A); put(B); put(C); get(A); put(D) must evict B, leaving
// {A, C, D} resident.
func TestEvictionLRU(t *testing.T) {
	c := New(3)

	put := func(col int) {
		h := c.Put(Key{Col: col}, []byte{byte(col)}, 1)
		h.Release()
	}
	put(1) // A
	put(2) // B
	put(3) // C

	if _, h, ok := c.Get(Key{Col: 1}); ok { // touch A, making B the LRU victim
		h.Release()
	} else {
		t.Fatalf("expected A resident before D is inserted")
	}

	put(4) // D, should evict B

	if c.Has(Key{Col: 2}) {
		t.Errorf("expected B evicted, still resident")
	}
	for _, col := range []int{1, 3, 4} {
		if !c.Has(Key{Col: col}) {
			t.Errorf("expected key %d resident", col)
		}
	}
	if c.Len() != 3 {
		t.Errorf("expected 3 resident entries, got %d", c.Len())
	}
}

func TestPinnedEntrySurvivesEviction(t *testing.T) {
	c := New(2)

	_, hA, ok := func() ([]byte, *Handle, bool) {
		h := c.Put(Key{Col: 1}, []byte{1}, 1)
		return h.Bytes(), h, true
	}()
	if !ok {
		t.Fatal("put failed")
	}

	h2 := c.Put(Key{Col: 2}, []byte{2}, 1)
	h2.Release()

	// A is still pinned (hA never released). Inserting C should not evict A;
	// it must mark it evict-pending and leave it resident until released.
	h3 := c.Put(Key{Col: 3}, []byte{3}, 1)
	h3.Release()

	if !c.Has(Key{Col: 1}) {
		t.Fatalf("pinned entry A must remain resident while refcount > 0")
	}

	hA.Release()

	if c.Has(Key{Col: 1}) {
		t.Errorf("expected A evicted once its pin was released")
	}
}

func TestPutExistingKeyIsNoOp(t *testing.T) {
	c := New(10)

	h1 := c.Put(Key{Col: 1}, []byte("first"), 5)
	h2 := c.Put(Key{Col: 1}, []byte("second"), 6)

	if string(h1.Bytes()) != "first" || string(h2.Bytes()) != "first" {
		t.Errorf("first writer should win: got %q and %q", h1.Bytes(), h2.Bytes())
	}
	if c.UsedBytes() != 5 {
		t.Errorf("expected used bytes unchanged by no-op put, got %d", c.UsedBytes())
	}

	h1.Release()
	h2.Release()
}

func TestGetMiss(t *testing.T) {
	c := New(10)
	if _, _, ok := c.Get(Key{Col: 99}); ok {
		t.Fatalf("expected miss on empty cache")
	}
}
