// Package meshid provides the clock and message-identifier primitives
// shared by every other layer of the mesh core.
package meshid

import "time"

// Clock is a monotonic millisecond clock. The zero value is ready to use
// and starts counting from the instant of first use.
type Clock struct {
	start time.Time
}

// NewClock returns a Clock whose epoch is the current instant.
func NewClock() *Clock {
	return &Clock{start: time.Now()}
}

// NowMS returns milliseconds elapsed since the clock's epoch.
func (c *Clock) NowMS() uint64 {
	if c.start.IsZero() {
		c.start = time.Now()
	}
	return uint64(time.Since(c.start).Milliseconds())
}

// NowSec returns seconds elapsed since the clock's epoch.
func (c *Clock) NowSec() uint64 {
	return c.NowMS() / 1000
}

// EpochMS returns the current wall-clock time in Unix milliseconds, used
// wherever the wire format wants an absolute timestamp (Begin/End frames,
// heartbeat records, upload records) rather than a node-relative one.
func EpochMS() uint64 {
	return uint64(time.Now().UnixMilli())
}
