// Package devfs drives a real two-wire bus through the Linux i2c-dev
// interface. The "i2c-dev" kernel module has to be loaded.
package devfs

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sarchlab/i2cm/twowire"
)

var (
	// ErrUnsupported is returned on platforms without i2c-dev.
	ErrUnsupported = errors.New("i2c-dev is not supported on this platform")

	// ErrNotOpen is returned when the bus is used before BeginController.
	ErrNotOpen = errors.New("bus device not open")
)

// Device is an opened i2c-dev character device.
type Device interface {
	io.ReadWriteCloser

	// SetAddress selects the peripheral that following reads and writes
	// address.
	SetAddress(addr twowire.Address) error
}

// An Opener opens the device of a bus.
type Opener func(bus int) (Device, error)

// Driver implements twowire.Driver on top of an i2c-dev device. Reads run in
// the background so that RequestFrom returns immediately; the received bytes
// become available all at once. While a read is running, new transfers are
// refused with twowire.ErrBusBusy.
type Driver struct {
	bus     int
	open    Opener
	dev     Device
	divisor uint8

	transmitting bool
	txAddr       twowire.Address
	txBuf        []byte

	reading sync.WaitGroup
	lock    sync.Mutex
	busy    bool
	rx      []byte
	readErr error
}

// New creates a driver for /dev/i2c-<bus>.
func New(bus int) *Driver {
	return NewWithOpener(bus, openDevice)
}

// NewWithOpener creates a driver that opens its device with open.
func NewWithOpener(bus int, open Opener) *Driver {
	return &Driver{
		bus:  bus,
		open: open,
	}
}

// BeginController opens the bus device.
func (d *Driver) BeginController() error {
	if d.dev != nil {
		return nil
	}

	dev, err := d.open(d.bus)
	if err != nil {
		return fmt.Errorf("open bus %d: %w", d.bus, err)
	}

	d.dev = dev

	return nil
}

// SetClockDivisor records the divisor. The kernel owns the bus clock, so the
// value has no effect on the hardware.
func (d *Driver) SetClockDivisor(div uint8) {
	d.divisor = div
}

// Divisor returns the recorded clock divisor.
func (d *Driver) Divisor() uint8 {
	return d.divisor
}

// BeginTransmission starts buffering a message for addr.
func (d *Driver) BeginTransmission(addr twowire.Address) {
	d.transmitting = true
	d.txAddr = addr
	d.txBuf = d.txBuf[:0]
}

// Write appends p to the message.
func (d *Driver) Write(p []byte) (int, error) {
	if !d.transmitting {
		return 0, errors.New("write outside of a transmission")
	}

	d.txBuf = append(d.txBuf, p...)

	return len(p), nil
}

// EndTransmission sends the buffered message in one write.
func (d *Driver) EndTransmission() error {
	d.transmitting = false

	if d.dev == nil {
		return ErrNotOpen
	}

	if d.Busy() {
		return fmt.Errorf("write to %s: %w", d.txAddr, twowire.ErrBusBusy)
	}

	err := d.dev.SetAddress(d.txAddr)
	if err != nil {
		return fmt.Errorf("select %s: %w", d.txAddr, translate(err))
	}

	_, err = d.dev.Write(d.txBuf)
	if err != nil {
		return fmt.Errorf("write to %s: %w", d.txAddr, translate(err))
	}

	return nil
}

// RequestFrom starts reading count bytes from addr in the background.
// Unconsumed bytes of an earlier read are discarded.
func (d *Driver) RequestFrom(addr twowire.Address, count int) error {
	if d.dev == nil {
		return ErrNotOpen
	}

	if d.Busy() {
		return fmt.Errorf("read from %s: %w", addr, twowire.ErrBusBusy)
	}

	err := d.dev.SetAddress(addr)
	if err != nil {
		return fmt.Errorf("select %s: %w", addr, translate(err))
	}

	d.lock.Lock()
	d.busy = true
	d.rx = nil
	d.readErr = nil
	d.lock.Unlock()

	d.reading.Add(1)

	go d.read(addr, count)

	return nil
}

func (d *Driver) read(addr twowire.Address, count int) {
	defer d.reading.Done()

	buf := make([]byte, count)
	n, err := d.dev.Read(buf)

	d.lock.Lock()
	defer d.lock.Unlock()

	d.busy = false

	if err != nil {
		d.readErr = fmt.Errorf("read from %s: %w", addr, translate(err))
		return
	}

	d.rx = buf[:n]
}

// Busy reports whether a background read is still running.
func (d *Driver) Busy() bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.busy
}

// Available returns the number of received bytes that have not been read.
func (d *Driver) Available() int {
	d.lock.Lock()
	defer d.lock.Unlock()

	return len(d.rx)
}

// ReadByte consumes one received byte.
func (d *Driver) ReadByte() (byte, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if len(d.rx) == 0 {
		return 0, twowire.ErrNoData
	}

	b := d.rx[0]
	d.rx = d.rx[1:]

	return b, nil
}

// Err returns the error of the last background read, if it failed.
func (d *Driver) Err() error {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.readErr
}

// Close waits for a running read and closes the device.
func (d *Driver) Close() error {
	d.reading.Wait()

	if d.dev == nil {
		return nil
	}

	err := d.dev.Close()
	d.dev = nil

	return err
}
