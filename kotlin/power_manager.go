package kotlin

import (
	"sync"
	"time"
)

// Wake lock levels
const (
	PARTIAL_WAKE_LOCK = 0x00000001
)

// PowerManager matches Android's PowerManager wake lock factory.
type PowerManager struct {
	clock Clock
	mu    sync.Mutex
	held  int
	total int
}

// NewPowerManager creates a power manager whose lock timeouts run on clock.
func NewPowerManager(clock Clock) *PowerManager {
	return &PowerManager{clock: clock}
}

// NewWakeLock creates a (not yet held) wake lock.
// Matches: powerManager.newWakeLock(levelAndFlags, tag)
func (p *PowerManager) NewWakeLock(levelAndFlags int, tag string) *WakeLock {
	return &WakeLock{pm: p, level: levelAndFlags, tag: tag}
}

// HeldCount returns how many wake locks are currently held.
func (p *PowerManager) HeldCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.held
}

// Acquisitions returns how many times any wake lock was acquired.
func (p *PowerManager) Acquisitions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

func (p *PowerManager) adjust(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held += delta
	if delta > 0 {
		p.total += delta
	}
}

// WakeLock keeps the device awake while held. It is not reference counted.
type WakeLock struct {
	pm    *PowerManager
	level int
	tag   string
	mu    sync.Mutex
	held  bool
	timer Timer
}

// Tag returns the tag the lock was created with.
func (w *WakeLock) Tag() string {
	return w.tag
}

// Acquire holds the lock, releasing it automatically after timeout (0 = no timeout).
// Matches: wakeLock.acquire(timeout)
func (w *WakeLock) Acquire(timeout time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if !w.held {
		w.held = true
		w.pm.adjust(1)
	}
	if timeout > 0 {
		w.timer = w.pm.clock.AfterFunc(timeout, w.Release)
	}
}

// Release drops the lock. Releasing a lock that is not held is a no-op.
// Matches: wakeLock.release()
func (w *WakeLock) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if w.held {
		w.held = false
		w.pm.adjust(-1)
	}
}

// IsHeld reports whether the lock is held.
func (w *WakeLock) IsHeld() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.held
}
