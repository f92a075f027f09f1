package kotlin

import (
	"testing"
	"time"
)

func TestWakeLock_AcquireRelease(t *testing.T) {
	pm := NewPowerManager(NewManualClock(testEpoch))
	wl := pm.NewWakeLock(PARTIAL_WAKE_LOCK, "beacon:test")

	wl.Acquire(time.Second)
	if !wl.IsHeld() || pm.HeldCount() != 1 {
		t.Fatal("Wake lock should be held after Acquire")
	}
	wl.Release()
	if wl.IsHeld() || pm.HeldCount() != 0 {
		t.Fatal("Wake lock should be released")
	}

	// Releasing again is harmless.
	wl.Release()
	if pm.HeldCount() != 0 {
		t.Errorf("Double release changed held count to %d", pm.HeldCount())
	}
}

func TestWakeLock_TimeoutReleases(t *testing.T) {
	clock := NewManualClock(testEpoch)
	pm := NewPowerManager(clock)
	wl := pm.NewWakeLock(PARTIAL_WAKE_LOCK, "beacon:test")

	wl.Acquire(500 * time.Millisecond)
	clock.Advance(499 * time.Millisecond)
	if !wl.IsHeld() {
		t.Fatal("Wake lock released before its timeout")
	}
	clock.Advance(time.Millisecond)
	if wl.IsHeld() {
		t.Fatal("Wake lock still held after its timeout")
	}
	if pm.Acquisitions() != 1 {
		t.Errorf("Expected 1 acquisition, got %d", pm.Acquisitions())
	}
}
