package timing

import (
	"sync"
	"time"
)

// Clock tells the current value of a monotonic microsecond counter.
type Clock interface {
	NowMicros() Micros
}

// WallClock is a Clock backed by the monotonic reading of the host clock.
type WallClock struct {
	start time.Time
}

// NewWallClock creates a WallClock whose counter starts at zero now.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// NowMicros returns the microseconds passed since the clock was created,
// truncated to the width of the counter.
func (c *WallClock) NowMicros() Micros {
	return Micros(uint64(time.Since(c.start).Microseconds()))
}

// ManualClock is a Clock that only moves when told to. Simulations and tests
// use it to run in virtual time.
type ManualClock struct {
	lock sync.Mutex
	now  Micros
}

// NewManualClock creates a ManualClock starting at the given value.
func NewManualClock(start Micros) *ManualClock {
	return &ManualClock{now: start}
}

// NowMicros returns the current virtual time.
func (c *ManualClock) NowMicros() Micros {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.now
}

// Advance moves the clock forward. The counter wraps like a hardware one.
func (c *ManualClock) Advance(d Micros) {
	c.lock.Lock()
	c.now += d
	c.lock.Unlock()
}

// AdvanceDuration moves the clock forward by a time.Duration.
func (c *ManualClock) AdvanceDuration(d time.Duration) {
	c.Advance(Micros(uint64(d.Microseconds())))
}

// Set jumps the clock to the given value.
func (c *ManualClock) Set(now Micros) {
	c.lock.Lock()
	c.now = now
	c.lock.Unlock()
}
