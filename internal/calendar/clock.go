package calendar

import (
	"fmt"
	"sync"
	"time"
)

// Clock supplies "now" to the engine
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in a fixed location
type SystemClock struct {
	loc *time.Location
}

// NewSystemClock creates a wall clock
func NewSystemClock(loc *time.Location) *SystemClock {
	return &SystemClock{loc: loc}
}

func (c *SystemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// SwitchClock is the wall clock, optionally pinned to a simulated hour:minute
// of the current day for testing the time gates.
type SwitchClock struct {
	mu        sync.RWMutex
	base      Clock
	simulated bool
	at        HM
}

// NewSwitchClock wraps base
func NewSwitchClock(base Clock) *SwitchClock {
	return &SwitchClock{base: base}
}

// Now returns today's date with the simulated hour:minute (seconds zeroed),
// or the base clock when not simulating.
func (c *SwitchClock) Now() time.Time {
	now := c.base.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.simulated {
		return now
	}
	return time.Date(now.Year(), now.Month(), now.Day(), c.at.Hour, c.at.Minute, 0, 0, now.Location())
}

// Simulate pins the clock to hour:minute
func (c *SwitchClock) Simulate(hour, minute int) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("invalid simulated time %02d:%02d", hour, minute)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.simulated = true
	c.at = HM{hour, minute}
	return nil
}

// Real returns to the wall clock
func (c *SwitchClock) Real() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.simulated = false
}

// Simulated reports whether the clock is pinned and to what
func (c *SwitchClock) Simulated() (bool, HM) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.simulated, c.at
}

// FixedClock always returns the same instant
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock creates a clock stopped at t
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set moves the clock to t
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}
