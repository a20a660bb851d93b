package testutil

import "sync"

// DeterministicClock is a thread-safe microsecond clock for tests.
//
// Every call to NowMicros advances the clock by exactly one microsecond, so a
// run executed in a fixed order produces byte-identical audit logs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start uint64
	now   uint64
}

// NewDeterministicClock creates a clock whose first reading is start+1.
func NewDeterministicClock(start uint64) *DeterministicClock {
	return &DeterministicClock{start: start, now: start}
}

// NowMicros advances the clock and returns the new reading.
//
// Implements auditlog.Clock.
func (c *DeterministicClock) NowMicros() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now++
	return c.now
}

// Current returns the last reading without advancing.
func (c *DeterministicClock) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset rewinds the clock to its starting value.
//
// Used for test reuse. After Reset(), the next reading is start+1 again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
