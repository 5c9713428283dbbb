// Package simbus provides an in-process two-wire bus with simulated
// peripherals. It implements twowire.Driver, so a coordinator can run on it
// without hardware, in wall-clock or virtual time.
package simbus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sarchlab/i2cm/timing"
	"github.com/sarchlab/i2cm/twowire"
)

// ErrNotStarted is returned when the bus is used before BeginController.
var ErrNotStarted = errors.New("bus controller not started")

// Stats counts the traffic on a bus.
type Stats struct {
	Transmissions  int
	Requests       int
	NACKs          int
	BytesWritten   int
	BytesDelivered int
}

type burst struct {
	data    []byte
	armedAt timing.Micros
	delay   timing.Micros
}

// Bus is a simulated two-wire bus with a single controller.
type Bus struct {
	lock sync.Mutex

	clock      timing.Clock
	bufferSize int
	countLimit bool

	peripherals map[twowire.Address]Peripheral
	lastWritten map[twowire.Address][]byte

	started bool
	divisor uint8

	transmitting bool
	txAddr       twowire.Address
	txBuf        []byte

	pending *burst
	rx      []byte

	stats Stats
}

// Attach connects a peripheral at the given address, replacing any
// peripheral already there.
func (b *Bus) Attach(addr twowire.Address, p Peripheral) {
	if !addr.Valid() {
		panic(fmt.Sprintf("address %s is not a 7-bit address", addr))
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	b.peripherals[addr] = p
}

// Detach disconnects the peripheral at the given address.
func (b *Bus) Detach(addr twowire.Address) {
	b.lock.Lock()
	defer b.lock.Unlock()

	delete(b.peripherals, addr)
	delete(b.lastWritten, addr)
}

// Stats returns a copy of the traffic counters.
func (b *Bus) Stats() Stats {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.stats
}

// Divisor returns the last clock divisor set by the controller.
func (b *Bus) Divisor() uint8 {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.divisor
}

// BeginController starts the bus.
func (b *Bus) BeginController() error {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.started = true
	b.pending = nil
	b.rx = nil

	return nil
}

// SetClockDivisor records the divisor. The simulated bus does not model
// bit timing.
func (b *Bus) SetClockDivisor(div uint8) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.divisor = div
}

// BeginTransmission starts buffering a message for addr.
func (b *Bus) BeginTransmission(addr twowire.Address) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.transmitting = true
	b.txAddr = addr
	b.txBuf = b.txBuf[:0]
}

// Write appends p to the transmit buffer.
func (b *Bus) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if !b.transmitting {
		return 0, errors.New("write outside of a transmission")
	}

	room := b.bufferSize - len(b.txBuf)
	if len(p) > room {
		b.txBuf = append(b.txBuf, p[:room]...)
		return room, twowire.ErrDataTooLong
	}

	b.txBuf = append(b.txBuf, p...)

	return len(p), nil
}

// EndTransmission delivers the buffered message to the addressed
// peripheral.
func (b *Bus) EndTransmission() error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if !b.started {
		return ErrNotStarted
	}

	b.transmitting = false
	b.stats.Transmissions++

	if _, found := b.peripherals[b.txAddr]; !found {
		b.stats.NACKs++
		return fmt.Errorf("%w at %s", twowire.ErrNoSuchDevice, b.txAddr)
	}

	b.lastWritten[b.txAddr] = append([]byte{}, b.txBuf...)
	b.stats.BytesWritten += len(b.txBuf)

	return nil
}

// RequestFrom asks the peripheral at addr for its reply. The reply arrives
// as one burst after the peripheral's delay. Data from an earlier read that
// has not been consumed is discarded.
func (b *Bus) RequestFrom(addr twowire.Address, count int) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if !b.started {
		return ErrNotStarted
	}

	b.stats.Requests++
	b.pending = nil
	b.rx = nil

	p, found := b.peripherals[addr]
	if !found {
		b.stats.NACKs++
		return fmt.Errorf("%w at %s", twowire.ErrNoSuchDevice, addr)
	}

	reply := p.Respond(b.lastWritten[addr])
	if reply.Silent {
		return nil
	}

	data := reply.Data
	if b.countLimit && len(data) > count {
		data = data[:count]
	}

	b.pending = &burst{
		data:    append([]byte{}, data...),
		armedAt: b.clock.NowMicros(),
		delay:   reply.Delay,
	}

	return nil
}

// Available returns the number of received bytes that have not been read.
func (b *Bus) Available() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.deliver()

	return len(b.rx)
}

// ReadByte consumes one received byte.
func (b *Bus) ReadByte() (byte, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.deliver()

	if len(b.rx) == 0 {
		return 0, twowire.ErrNoData
	}

	v := b.rx[0]
	b.rx = b.rx[1:]

	return v, nil
}

func (b *Bus) deliver() {
	if b.pending == nil {
		return
	}

	if timing.Since(b.pending.armedAt, b.clock.NowMicros()) < b.pending.delay {
		return
	}

	b.rx = append(b.rx, b.pending.data...)
	b.stats.BytesDelivered += len(b.pending.data)
	b.pending = nil
}
