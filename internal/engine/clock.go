package engine

import (
	"sync/atomic"
	"time"
)

// SystemClock is a wall-clock microsecond source that never goes backwards.
//
// If the wall clock steps back (NTP adjustment), readings hold at the last
// value until the wall clock catches up. Audit lines from the same critical
// section therefore always have non-decreasing timestamps.
//
// Thread-safety: SystemClock is safe for concurrent use (atomic operations).
type SystemClock struct {
	last atomic.Uint64
	now  func() time.Time
}

// NewSystemClock returns a clock backed by time.Now.
func NewSystemClock() *SystemClock {
	return &SystemClock{now: time.Now}
}

// NowMicros returns the current time in microseconds since the Unix epoch.
//
// Implements auditlog.Clock.
func (c *SystemClock) NowMicros() uint64 {
	now := uint64(c.now().UnixMicro())
	for {
		last := c.last.Load()
		if now <= last {
			return last
		}
		if c.last.CompareAndSwap(last, now) {
			return now
		}
	}
}
