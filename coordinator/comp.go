// Package coordinator implements the bus transaction coordinator: a
// non-blocking master that keeps at most one request outstanding on a
// two-wire bus and resolves it into a reply or a timeout as it is polled.
//
// The coordinator never waits. A caller submits a request, calls Poll from
// its main loop, and fetches the outcome once HasReply reports one. Replies
// are attributed to requests purely by order: there is only ever one request
// the next reply can belong to.
package coordinator

import (
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sarchlab/i2cm/hooking"
	"github.com/sarchlab/i2cm/timing"
	"github.com/sarchlab/i2cm/twowire"
)

// MaxMessageSize is the capacity of requests and replies in bytes. It matches
// the receive buffer of the bus driver on the target hardware.
const MaxMessageSize = 132

type transaction struct {
	id      string
	address twowire.Address
	sentAt  timing.Micros
	elapsed timing.Micros

	buf     [MaxMessageSize]byte
	length  int
	dropped int
}

// Comp is a bus transaction coordinator. It owns its driver exclusively and
// must only be used from one goroutine.
type Comp struct {
	hooking.HookableBase

	name    string
	driver  twowire.Driver
	clock   timing.Clock
	cpuFreq timing.Freq
	timeout timing.Micros

	state State
	txn   transaction
}

// Name returns the name of the coordinator.
func (c *Comp) Name() string {
	return c.name
}

// State returns the current state.
func (c *Comp) State() State {
	return c.state
}

// Timeout returns how long requests wait for their reply.
func (c *Comp) Timeout() time.Duration {
	return c.timeout.Duration()
}

// SetTimeout changes the reply timeout. It can only be changed while no
// request is outstanding.
func (c *Comp) SetTimeout(d time.Duration) error {
	if c.state != StateIdle {
		return ErrBusy
	}

	timeout, err := timing.FromDuration(d)
	if err != nil || timeout == 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, d)
	}

	c.timeout = timeout

	return nil
}

// Setup configures the bus clock for busFreq and starts the driver as the bus
// controller. Any outstanding transaction is discarded.
func (c *Comp) Setup(busFreq timing.Freq) error {
	c.state = StateIdle
	c.txn = transaction{}

	div, err := twowire.ClockDivisor(c.cpuFreq, busFreq)
	if err != nil {
		return err
	}

	c.driver.SetClockDivisor(div)

	return c.driver.BeginController()
}

// IsReady reports whether a new request can be submitted.
func (c *Comp) IsReady() bool {
	return c.state == StateIdle
}

// HasReply reports whether an outcome, reply or timeout, is waiting to be
// fetched.
func (c *Comp) HasReply() bool {
	return c.state == StateCompleted || c.state == StateExpired
}

// IsBusy reports whether a request is waiting for its reply.
func (c *Comp) IsBusy() bool {
	return c.state == StatePending
}

// HasTimedOut reports whether the outstanding request timed out and the
// timeout has not been fetched yet.
func (c *Comp) HasTimedOut() bool {
	return c.state == StateExpired
}

// SubmitRequest sends msg to the peripheral at addr and arms the driver to
// receive the reply. It returns the number of bytes sent.
//
// Errors reported by the driver while sending do not fail the submission.
// They are published on HookPosBusFault, and the transaction resolves through
// Poll like any other, usually by timing out.
func (c *Comp) SubmitRequest(addr twowire.Address, msg []byte) (int, error) {
	if c.state != StateIdle {
		return 0, ErrBusy
	}

	if len(msg) > MaxMessageSize {
		return 0, ErrTooLong
	}

	c.state = StatePending
	c.txn = transaction{
		id:      xid.New().String(),
		address: addr,
		sentAt:  c.clock.NowMicros(),
	}

	c.transmit(addr, msg)

	err := c.driver.RequestFrom(addr, MaxMessageSize)
	if err != nil {
		c.invoke(HookPosBusFault, fmt.Errorf("request from %s: %w", addr, err))
	}

	c.invoke(HookPosRequestSent, Request{
		ID:      c.txn.id,
		Address: addr,
		Message: msg,
		SentAt:  c.txn.sentAt,
	})

	return len(msg), nil
}

func (c *Comp) transmit(addr twowire.Address, msg []byte) {
	c.driver.BeginTransmission(addr)

	_, err := c.driver.Write(msg)
	if err != nil {
		c.invoke(HookPosBusFault, fmt.Errorf("write to %s: %w", addr, err))
	}

	err = c.driver.EndTransmission()
	if err != nil {
		c.invoke(HookPosBusFault, fmt.Errorf("transmit to %s: %w", addr, err))
	}
}

// Poll advances the coordinator by one step. It never blocks.
func (c *Comp) Poll() {
	c.Tick()
}

// Tick advances the coordinator by one step and reports whether the state
// changed.
func (c *Comp) Tick() bool {
	if c.state != StatePending {
		return false
	}

	if c.driver.Available() > 0 {
		n, err := c.drain()
		if err != nil {
			c.invoke(HookPosBusFault,
				fmt.Errorf("read from %s: %w", c.txn.address, err))
		}

		if n > 0 {
			c.txn.elapsed = timing.Since(c.txn.sentAt, c.clock.NowMicros())
			c.state = StateCompleted
			c.invoke(HookPosReplyReceived, c.response())

			return true
		}
	}

	if timing.Since(c.txn.sentAt, c.clock.NowMicros()) >= c.timeout {
		c.txn.elapsed = c.timeout
		c.state = StateExpired
		c.invoke(HookPosRequestExpired, c.response())

		return true
	}

	return false
}

// drain reads every byte the driver holds and returns how many it read.
// Bytes beyond the buffer capacity are read and counted, but not stored.
func (c *Comp) drain() (int, error) {
	n := 0

	for c.driver.Available() > 0 {
		b, err := c.driver.ReadByte()
		if err != nil {
			return n, err
		}

		n++

		if c.txn.length < MaxMessageSize {
			c.txn.buf[c.txn.length] = b
			c.txn.length++

			continue
		}

		c.txn.dropped++
	}

	return n, nil
}

// FetchResponse hands over the outcome of the last request and makes the
// coordinator ready for the next one.
//
// A reply is returned with a nil error. A timeout is returned as a response
// with no data, the target address and the timeout as elapsed time, together
// with ErrTimedOut. Fetching while the request is in flight returns
// ErrStillInFlight; fetching with no request returns ErrNothingPending.
func (c *Comp) FetchResponse() (Response, error) {
	switch c.state {
	case StatePending:
		return Response{}, ErrStillInFlight
	case StateIdle:
		return Response{}, ErrNothingPending
	}

	rsp := c.response()
	timedOut := c.state == StateExpired

	c.state = StateIdle
	c.invoke(HookPosResponseFetched, rsp)

	if timedOut {
		return rsp, ErrTimedOut
	}

	return rsp, nil
}

func (c *Comp) response() Response {
	rsp := Response{
		ID:      c.txn.id,
		Address: c.txn.address,
		Elapsed: c.txn.elapsed,
		Data:    []byte{},
	}

	switch c.state {
	case StateCompleted:
		rsp.Data = make([]byte, c.txn.length)
		copy(rsp.Data, c.txn.buf[:c.txn.length])
		rsp.Dropped = c.txn.dropped
	case StateExpired:
		rsp.TimedOut = true
	}

	return rsp
}
