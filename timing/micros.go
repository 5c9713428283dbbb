// Package timing provides the microsecond clock used to measure bus round
// trips, together with frequency helpers for the bus clock.
package timing

import (
	"fmt"
	"math"
	"time"
)

// Micros is a sample of a free-running microsecond counter. The counter is
// 32 bits wide and wraps around, the same way a microcontroller's micros()
// counter does. Differences between two samples stay correct across a wrap as
// long as the true interval is shorter than the counter period.
type Micros uint32

// MaxTimeout is the longest interval that can be measured without ambiguity.
// It is half of the counter period so that an overdue deadline is never
// mistaken for a fresh one.
const MaxTimeout = Micros(math.MaxUint32 / 2)

// Since returns the number of microseconds between start and now.
func Since(start, now Micros) Micros {
	return now - start
}

// FromDuration converts a duration into microseconds. It returns an error if
// the duration is negative or does not fit below MaxTimeout.
func FromDuration(d time.Duration) (Micros, error) {
	us := d.Microseconds()
	if us < 0 || us > int64(MaxTimeout) {
		return 0, fmt.Errorf("duration %s out of range", d)
	}

	return Micros(us), nil
}

// Duration converts the microseconds into a time.Duration.
func (m Micros) Duration() time.Duration {
	return time.Duration(m) * time.Microsecond
}

func (m Micros) String() string {
	return fmt.Sprintf("%dus", uint32(m))
}
