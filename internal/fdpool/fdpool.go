// Package fdpool bounds how many underlying file descriptors a slide's
// backends may hold open concurrently: the number of simultaneously open
// file descriptors across all of a slide's constituent files stays
// bounded, independent of how many goroutines are concurrently reading
// tiles.
//
// Grounded on internal/tile/generator.go's worker-pool concurrency idiom,
// which caps concurrent tile generation with a buffered channel used as a
// semaphore; this package applies the same buffered-channel-as-semaphore
// technique to file handle checkout instead of goroutine fan-out.
package fdpool

import "context"

// Pool bounds concurrent access to a fixed set of open handles. It does
// not open or close files itself — callers supply an Opener that returns
// an already-open handle, and the pool's job is purely to cap how many
// such handles exist at once and to let go-routines block (respecting
// context cancellation) rather than fail when the bound is reached.
type Pool struct {
	tokens chan struct{}
}

// New creates a pool permitting at most max concurrently checked-out
// handles.
func New(max int) *Pool {
	if max <= 0 {
		max = 1
	}
	p := &Pool{tokens: make(chan struct{}, max)}
	for i := 0; i < max; i++ {
		p.tokens <- struct{}{}
	}
	return p
}

// Acquire blocks until a slot is available or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	select {
	case <-p.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot to the pool. Must be called exactly once per
// successful Acquire.
func (p *Pool) Release() {
	select {
	case p.tokens <- struct{}{}:
	default:
		panic("fdpool: Release called more times than Acquire")
	}
}

// Len reports the number of currently available (not checked out) slots.
func (p *Pool) Len() int { return len(p.tokens) }

// Cap reports the pool's total capacity.
func (p *Pool) Cap() int { return cap(p.tokens) }
