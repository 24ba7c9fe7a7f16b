// Package lamport implements the logical clock that orders every protocol
// event. The clock is advanced on each locally generated event (Tick) and
// merged with the timestamp of each received message (Observe), giving a
// causal order across processes without real-time synchronization.
package lamport

import "sync"

// Clock is a Lamport logical clock. Tick and Observe are linearizable with
// respect to each other at a single node; one mutex guards the counter.
type Clock struct {
	mu   sync.Mutex
	time int
}

// New returns a clock starting at zero.
func New() *Clock {
	return &Clock{}
}

// Time returns the current value without advancing it.
func (c *Clock) Time() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

// Tick increments the clock and returns the new value. It must be called
// once for every locally originated event, before the event's timestamp is
// embedded in an outbound message.
func (c *Clock) Tick() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time++
	return c.time
}

// Observe merges a received timestamp into the clock, setting it to
// max(local, received)+1, and returns the new value. It must be called on
// receipt of every inbound protocol message, before the handler inspects
// priority.
func (c *Clock) Observe(received int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if received > c.time {
		c.time = received
	}
	c.time++
	return c.time
}
