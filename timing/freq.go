package timing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Freq defines the type of frequency
type Freq float64

// Defines the unit of frequency
const (
	Hz  Freq = 1
	KHz Freq = 1e3
	MHz Freq = 1e6
	GHz Freq = 1e9
)

// ErrInvalidFreq is returned when a frequency string cannot be parsed.
var ErrInvalidFreq = errors.New("invalid frequency")

// Period returns the time between two consecutive ticks
func (f Freq) Period() time.Duration {
	if f <= 0 {
		panic("frequency must be positive")
	}

	return time.Duration(float64(time.Second) / float64(f))
}

// Hertz returns the frequency as an integer number of Hz.
func (f Freq) Hertz() int64 {
	return int64(f)
}

func (f Freq) String() string {
	switch {
	case f >= GHz:
		return formatFreq(f/GHz) + "GHz"
	case f >= MHz:
		return formatFreq(f/MHz) + "MHz"
	case f >= KHz:
		return formatFreq(f/KHz) + "kHz"
	default:
		return formatFreq(f) + "Hz"
	}
}

func formatFreq(v Freq) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 64)
}

// ParseFreq parses strings such as "100kHz", "16MHz", "400000" or "1.5 GHz".
// Units are case-insensitive; a bare number is taken as Hz.
func ParseFreq(s string) (Freq, error) {
	str := strings.ToLower(strings.TrimSpace(s))

	unit := Hz
	for _, u := range []struct {
		suffix string
		unit   Freq
	}{
		{"ghz", GHz},
		{"mhz", MHz},
		{"khz", KHz},
		{"hz", Hz},
	} {
		if strings.HasSuffix(str, u.suffix) {
			unit = u.unit
			str = strings.TrimSpace(strings.TrimSuffix(str, u.suffix))

			break
		}
	}

	v, err := strconv.ParseFloat(str, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFreq, s)
	}

	return Freq(v) * unit, nil
}
