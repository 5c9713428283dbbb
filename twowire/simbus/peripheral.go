package simbus

import (
	"github.com/sarchlab/i2cm/timing"
)

// Reply is what a simulated peripheral puts on the bus when the controller
// reads from it.
type Reply struct {
	// Data is delivered as one burst.
	Data []byte

	// Delay is how long after the read request the burst becomes available.
	Delay timing.Micros

	// Silent peripherals ACK their address but never deliver data.
	Silent bool
}

// A Peripheral is a device model attached to a simulated bus.
type Peripheral interface {
	// Respond returns the reply to the last message written to the
	// peripheral. req is empty when nothing has been written yet.
	Respond(req []byte) Reply
}

// PeripheralFunc adapts an ordinary function into a Peripheral.
type PeripheralFunc func(req []byte) Reply

// Respond calls f(req).
func (f PeripheralFunc) Respond(req []byte) Reply {
	return f(req)
}

// Table answers known commands with fixed replies.
type Table struct {
	Replies map[string][]byte
	Default []byte
	Delay   timing.Micros
}

// NewTable creates a Table without entries. A Table without a default stays
// silent on unknown commands.
func NewTable(delay timing.Micros) *Table {
	return &Table{
		Replies: make(map[string][]byte),
		Delay:   delay,
	}
}

// On adds a command and its reply.
func (t *Table) On(cmd string, reply []byte) *Table {
	t.Replies[cmd] = reply
	return t
}

// Respond looks up the request.
func (t *Table) Respond(req []byte) Reply {
	data, found := t.Replies[string(req)]
	if !found {
		data = t.Default
	}

	if data == nil {
		return Reply{Silent: true}
	}

	return Reply{Data: data, Delay: t.Delay}
}

// Echo sends every request back.
type Echo struct {
	Delay timing.Micros
}

// Respond returns a copy of req.
func (e Echo) Respond(req []byte) Reply {
	return Reply{
		Data:  append([]byte{}, req...),
		Delay: e.Delay,
	}
}

// Silent ACKs its address and never answers.
type Silent struct{}

// Respond never produces data.
func (Silent) Respond([]byte) Reply {
	return Reply{Silent: true}
}

// Flood answers every request with Size bytes counting up from zero.
type Flood struct {
	Size  int
	Delay timing.Micros
}

// Respond returns the flood.
func (f Flood) Respond([]byte) Reply {
	data := make([]byte, f.Size)
	for i := range data {
		data[i] = byte(i)
	}

	return Reply{Data: data, Delay: f.Delay}
}
