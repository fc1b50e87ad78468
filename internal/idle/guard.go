// Package idle implements the IdleGuard primitive (§3, §5): an atomic
// counter of in-flight requests that lets the connection task detect
// quiescence without holding a lock across a suspension point.
package idle

import "sync/atomic"

// Counter tracks the number of currently in-flight requests on a
// connection. The zero value is ready to use.
type Counter struct {
	n atomic.Int64
}

// Guard is a single acquired slot. Dropping it (calling Release) decrements
// the counter. A Guard must be released exactly once.
type Guard struct {
	c *Counter
}

// Acquire increments the counter and returns a token whose Release
// decrements it again.
func (c *Counter) Acquire() *Guard {
	c.n.Add(1)
	return &Guard{c: c}
}

// Release decrements the counter. Safe to call at most once per Guard;
// calling it twice would under-count in-flight requests.
func (g *Guard) Release() {
	if g == nil {
		return
	}
	g.c.n.Add(-1)
}

// InFlight returns the current number of acquired, unreleased guards.
func (c *Counter) InFlight() int64 {
	return c.n.Load()
}

// Quiescent reports whether no requests are currently in flight — the
// condition under which a connection is safe to terminate cleanly.
func (c *Counter) Quiescent() bool {
	return c.n.Load() == 0
}
