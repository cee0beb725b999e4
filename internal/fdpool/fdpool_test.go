package fdpool

import (
	"context"
	"testing"
	"time"
)

func TestAcquireReleaseRespectsCapacity(t *testing.T) {
	p := New(2)
	ctx := context.Background()

	if err := p.Acquire(ctx); err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	if err := p.Acquire(ctx); err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}
	if p.Len() != 0 {
		t.Fatalf("expected 0 free slots, got %d", p.Len())
	}

	ctx2, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := p.Acquire(ctx2); err == nil {
		t.Fatal("expected Acquire to block until context deadline")
	}

	p.Release()
	if p.Len() != 1 {
		t.Fatalf("expected 1 free slot after Release, got %d", p.Len())
	}
}

func TestReleaseWithoutAcquirePanics(t *testing.T) {
	p := New(1)
	p.Acquire(context.Background())
	p.Release()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on over-release")
		}
	}()
	p.Release()
}
