package twowire

import "errors"

var (
	// ErrInvalidAddress signals an address that does not fit in 7 bits.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidFrequency signals a bus frequency that the clock generator
	// cannot produce.
	ErrInvalidFrequency = errors.New("invalid bus frequency")

	// ErrNACKReceived signals that a device did not ACK a data byte.
	ErrNACKReceived = errors.New("NACK received")

	// ErrNoSuchDevice signals that no device responded
	// with an ACK at the desired address.
	ErrNoSuchDevice = errors.New("no such device")

	// ErrDataTooLong signals a message larger than the driver's transmit
	// buffer.
	ErrDataTooLong = errors.New("data too long for transmit buffer")

	// ErrBusBusy signals that an earlier transfer still occupies the bus.
	ErrBusBusy = errors.New("bus busy")

	// ErrNoData is returned by ReadByte when nothing has been received.
	ErrNoData = errors.New("no data available")
)
