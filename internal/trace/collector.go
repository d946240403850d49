package trace

import "sync"

// Collector accumulates events from a run. It is safe for concurrent
// use: stub hooks append from the host-call path while the output
// writer and recorder drain from their own goroutines.
type Collector struct {
	mu     sync.Mutex
	events []*Event
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add appends an event.
func (c *Collector) Add(e *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

// Len returns the number of collected events.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Snapshot returns a copy of the collected events in arrival order.
func (c *Collector) Snapshot() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Event, len(c.events))
	copy(out, c.events)
	return out
}

// GetAndClear returns the collected events and resets the collector.
func (c *Collector) GetAndClear() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}
