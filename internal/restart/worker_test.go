package restart

import (
	"testing"
	"time"
)

func TestWorkerIndexesDuringIdlePeriod(t *testing.T) {
	buf := buildMarkerStream(300, map[int]byte{150: 0xD0})
	idx := NewIndex(fakeSource{buf}, 100, 280, 2, nil)

	w := NewWorkerWithDelay(idx, 10*time.Millisecond)
	defer w.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for w.State() != StateStopped && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if w.State() != StateStopped {
		t.Fatalf("worker did not finish indexing in time, state=%v", w.State())
	}

	got, err := idx.Compute(1)
	if err != nil {
		t.Fatalf("Compute(1): %v", err)
	}
	if got != 150 {
		t.Errorf("got %d, want 150", got)
	}
}

func TestWorkerPausesOnTouch(t *testing.T) {
	buf := buildMarkerStream(300, map[int]byte{150: 0xD0})
	idx := NewIndex(fakeSource{buf}, 100, 280, 2, nil)

	w := NewWorkerWithDelay(idx, 20*time.Millisecond)
	defer w.Stop()

	// Keep touching faster than the idle delay so the worker never
	// transitions out of Idle/Paused.
	for i := 0; i < 5; i++ {
		w.Touch()
		time.Sleep(5 * time.Millisecond)
	}
	if s := w.State(); s == StateStopped {
		t.Errorf("worker should not have finished while being kept busy, state=%v", s)
	}
}
