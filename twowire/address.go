package twowire

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is a 7-bit peripheral address.
type Address uint8

// MaxAddress is the highest 7-bit address.
const MaxAddress Address = 0x7f

// Valid reports whether the address fits in 7 bits.
func (a Address) Valid() bool {
	return a <= MaxAddress
}

func (a Address) String() string {
	return fmt.Sprintf("0x%02x", uint8(a))
}

// ParseAddress parses a decimal, hexadecimal (0x..), octal or binary address.
func ParseAddress(s string) (Address, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	addr := Address(v)
	if !addr.Valid() {
		return 0, fmt.Errorf("%w: %q is not a 7-bit address", ErrInvalidAddress, s)
	}

	return addr, nil
}
