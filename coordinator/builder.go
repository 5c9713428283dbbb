package coordinator

import (
	"time"

	"github.com/sarchlab/i2cm/timing"
	"github.com/sarchlab/i2cm/twowire"
)

// DefaultTimeout is how long a request waits for its reply unless configured
// otherwise.
const DefaultTimeout = 100 * time.Millisecond

// DefaultCPUFreq is the controller clock the bus divisor is derived from.
const DefaultCPUFreq = 16 * timing.MHz

// Builder can build coordinators.
type Builder struct {
	driver  twowire.Driver
	clock   timing.Clock
	cpuFreq timing.Freq
	timeout time.Duration
}

// MakeBuilder returns a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		cpuFreq: DefaultCPUFreq,
		timeout: DefaultTimeout,
	}
}

// WithDriver sets the bus driver the coordinator owns.
func (b Builder) WithDriver(driver twowire.Driver) Builder {
	b.driver = driver
	return b
}

// WithClock sets the clock that measures round trips.
func (b Builder) WithClock(clock timing.Clock) Builder {
	b.clock = clock
	return b
}

// WithCPUFreq sets the controller clock frequency.
func (b Builder) WithCPUFreq(freq timing.Freq) Builder {
	b.cpuFreq = freq
	return b
}

// WithTimeout sets how long to wait for a reply.
func (b Builder) WithTimeout(timeout time.Duration) Builder {
	b.timeout = timeout
	return b
}

func (b Builder) parametersMustBeValid() timing.Micros {
	if b.driver == nil {
		panic("a coordinator requires a bus driver")
	}

	if b.cpuFreq <= 0 {
		panic("cpu frequency must be positive")
	}

	timeout, err := timing.FromDuration(b.timeout)
	if err != nil || timeout == 0 {
		panic("timeout must be positive and shorter than timing.MaxTimeout")
	}

	return timeout
}

// Build creates a coordinator in the Idle state.
func (b Builder) Build(name string) *Comp {
	timeout := b.parametersMustBeValid()

	c := &Comp{
		name:    name,
		driver:  b.driver,
		clock:   b.clock,
		cpuFreq: b.cpuFreq,
		timeout: timeout,
		state:   StateIdle,
	}

	if c.clock == nil {
		c.clock = timing.NewWallClock()
	}

	return c
}
