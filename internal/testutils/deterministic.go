// Package testutils provides deterministic generators and scripted fakes for
// akashchat tests. Nothing here performs network I/O.
package testutils

import (
	"fmt"
	"sync"
	"time"
)

// BaseTime is the first instant returned by a DeterministicClock.
var BaseTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock returns incrementing timestamps one second apart,
// starting at BaseTime. Safe for concurrent use.
type DeterministicClock struct {
	mu    sync.Mutex
	ticks int64
}

// NewDeterministicClock creates a clock positioned at BaseTime.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Now returns BaseTime plus one second per previous call.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := BaseTime.Add(time.Duration(c.ticks) * time.Second)
	c.ticks++
	return t
}

// DeterministicIDs generates identifiers in UUID format:
// 00000001-0000-4000-8000-000000000001, 00000002-0000-4000-8000-000000000002, ...
type DeterministicIDs struct {
	mu      sync.Mutex
	counter uint64
}

// NewDeterministicIDs creates a generator starting at 1.
func NewDeterministicIDs() *DeterministicIDs {
	return &DeterministicIDs{}
}

// Next returns the next identifier.
func (g *DeterministicIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("%08x-0000-4000-8000-%012x", g.counter, g.counter)
}
