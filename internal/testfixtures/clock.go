package testfixtures

import (
	"sync"
	"time"
)

// referenceTime is Monday 2024-03-04 08:00 UTC, six days before a Sunday service.
var referenceTime = time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// NextSunday returns the first Sunday strictly after t at hour:minute UTC.
func NextSunday(t time.Time, hour, minute int) time.Time {
	offset := (7 - int(t.Weekday())) % 7
	if offset == 0 {
		offset = 7
	}
	day := t.AddDate(0, 0, offset)
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
}

// Clock provides a controllable time source for tests.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock initialised to start, or to ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the current instant tracked by the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc exposes Now as a function suitable for dependency injection.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the updated time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// Before places the clock d before target, e.g. just inside or outside a cutoff window.
func (c *Clock) Before(target time.Time, d time.Duration) time.Time {
	t := target.Add(-d)
	c.Set(t)
	return t
}
