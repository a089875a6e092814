package events

import (
	"context"
	"sync"
	"time"
)

// Collector is an Observer that records every event it receives. Tests
// subscribe a Collector to an isolated bus and assert on what was emitted.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) OnEvent(_ context.Context, e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

// Events returns a copy of everything collected so far, in delivery order.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Count returns how many collected events have type t.
func (c *Collector) Count(t Type) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// Types returns the types of collected events in delivery order.
func (c *Collector) Types() []Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Type, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

// Wait blocks until at least n events have been collected or timeout
// elapses, reporting whether the threshold was reached. Delivery is
// asynchronous; tests call Wait before asserting.
func (c *Collector) Wait(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		c.mu.Lock()
		have := len(c.events)
		c.mu.Unlock()
		if have >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// Reset discards everything collected so far.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}
