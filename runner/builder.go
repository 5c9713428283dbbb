package runner

import (
	"time"
)

// Builder can build runners.
type Builder struct {
	coord       Coordinator
	interval    time.Duration
	mailboxSize int
}

// MakeBuilder returns a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		interval:    time.Millisecond,
		mailboxSize: 16,
	}
}

// WithCoordinator sets the coordinator the runner drives.
func (b Builder) WithCoordinator(c Coordinator) Builder {
	b.coord = c
	return b
}

// WithInterval sets the time between two steps of Run. With a zero interval
// Run steps as fast as it can, yielding the processor between idle steps.
func (b Builder) WithInterval(d time.Duration) Builder {
	b.interval = d
	return b
}

// WithMailboxSize sets how many jobs can wait for the coordinator.
func (b Builder) WithMailboxSize(n int) Builder {
	b.mailboxSize = n
	return b
}

// Build creates a runner.
func (b Builder) Build() *Runner {
	if b.coord == nil {
		panic("runner requires a coordinator")
	}

	if b.interval < 0 {
		panic("runner interval must not be negative")
	}

	r := &Runner{
		coord:    b.coord,
		interval: b.interval,
		mailbox:  make(chan Job, b.mailboxSize),
	}
	r.refresh()

	return r
}
