package profiler

import "time"

// Clock is a monotonic wall clock reporting seconds since some fixed point.
type Clock interface {
	Seconds() float64
}

// MonotonicClock reads Go's monotonic clock relative to its creation.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock returns a clock starting near zero. The first reading is
// nudged off zero so open scopes are never mistaken for closed ones.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now().Add(-time.Microsecond)}
}

func (c *MonotonicClock) Seconds() float64 { return time.Since(c.start).Seconds() }
