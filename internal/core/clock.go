package core

import "time"

// Clock reports monotonic time elapsed since its origin. Timestamps on the
// wire and in logs are microseconds relative to that origin.
type Clock interface {
	Now() time.Duration
}

type monotonicClock struct {
	origin time.Time
}

// NewClock returns a Clock whose origin is the moment of the call.
func NewClock() Clock {
	return &monotonicClock{origin: time.Now()}
}

func (c *monotonicClock) Now() time.Duration {
	return time.Since(c.origin)
}

// Micros converts a clock reading into the 32-bit microsecond timestamp
// carried in packet headers. The value wraps after ~71 minutes.
func Micros(d time.Duration) uint32 {
	return uint32(d.Microseconds())
}
