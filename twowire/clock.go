package twowire

import (
	"fmt"

	"github.com/sarchlab/i2cm/timing"
)

// Common bus speeds.
const (
	StandardMode = 100 * timing.KHz
	FastMode     = 400 * timing.KHz
)

// ClockDivisor computes the bit-rate register value that makes a controller
// clocked at cpu run the bus at bus. The formula follows the AVR TWI clock
// generator, SCL = cpu / (16 + 2 * div), with integer arithmetic throughout.
func ClockDivisor(cpu, bus timing.Freq) (uint8, error) {
	cpuHz := cpu.Hertz()
	busHz := bus.Hertz()

	if cpuHz <= 0 || busHz <= 0 {
		return 0, fmt.Errorf("%w: cpu %s, bus %s", ErrInvalidFrequency, cpu, bus)
	}

	div := (cpuHz/busHz - 16) / 2
	if cpuHz/busHz < 16 || div > 0xff {
		return 0, fmt.Errorf(
			"%w: %s cannot be derived from a %s clock",
			ErrInvalidFrequency, bus, cpu)
	}

	return uint8(div), nil
}
