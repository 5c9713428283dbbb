// Package twowire defines the contract between the bus master and the
// two-wire (I2C) bus driver underneath it.
package twowire

// Driver is the controller side of a two-wire bus. It mirrors the small set of
// primitives that microcontroller bus libraries expose.
//
// Sending is synchronous: BeginTransmission, Write and EndTransmission move a
// whole message to the addressed peripheral. Receiving is armed by
// RequestFrom and completes in the background; the received bytes become
// visible through Available and ReadByte as a single burst.
type Driver interface {
	// BeginController initializes the bus in the controller role.
	BeginController() error

	// SetClockDivisor configures the bus clock rate.
	SetClockDivisor(div uint8)

	// BeginTransmission starts buffering a message for the peripheral.
	BeginTransmission(addr Address)

	// Write appends bytes to the message being buffered.
	Write(p []byte) (int, error)

	// EndTransmission sends the buffered message.
	EndTransmission() error

	// RequestFrom arms the driver to receive up to count bytes from the
	// peripheral.
	RequestFrom(addr Address, count int) error

	// Available returns the number of received bytes waiting to be read.
	Available() int

	// ReadByte returns the next received byte.
	ReadByte() (byte, error)
}
