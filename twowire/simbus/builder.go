package simbus

import (
	"github.com/sarchlab/i2cm/timing"
	"github.com/sarchlab/i2cm/twowire"
)

// DefaultBufferSize is the transmit buffer size of a simulated controller.
const DefaultBufferSize = 132

// Builder can build simulated buses.
type Builder struct {
	clock      timing.Clock
	bufferSize int
	countLimit bool
}

// MakeBuilder returns a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		bufferSize: DefaultBufferSize,
		countLimit: true,
	}
}

// WithClock sets the clock that delays replies. A wall clock is used when no
// clock is set.
func (b Builder) WithClock(clock timing.Clock) Builder {
	b.clock = clock
	return b
}

// WithBufferSize sets how many bytes a single transmission can carry.
func (b Builder) WithBufferSize(n int) Builder {
	b.bufferSize = n
	return b
}

// WithoutCountLimit delivers complete replies even when the controller asked
// for fewer bytes. This mimics controllers that keep clocking in data from a
// chatty peripheral.
func (b Builder) WithoutCountLimit() Builder {
	b.countLimit = false
	return b
}

// Build creates a bus with no peripherals attached.
func (b Builder) Build() *Bus {
	clock := b.clock
	if clock == nil {
		clock = timing.NewWallClock()
	}

	return &Bus{
		clock:       clock,
		bufferSize:  b.bufferSize,
		countLimit:  b.countLimit,
		peripherals: make(map[twowire.Address]Peripheral),
		lastWritten: make(map[twowire.Address][]byte),
	}
}
