package coordinator

import (
	"fmt"

	"github.com/sarchlab/i2cm/timing"
	"github.com/sarchlab/i2cm/twowire"
)

// Request describes a submitted request. It is the item of
// HookPosRequestSent.
type Request struct {
	ID      string
	Address twowire.Address
	Message []byte
	SentAt  timing.Micros
}

func (r Request) String() string {
	return fmt.Sprintf("%s -> %s %q", r.ID, r.Address, r.Message)
}

// Response is the outcome of one request.
type Response struct {
	// ID is the identifier the request was traced with.
	ID string

	// Data is the reply. It is owned by the caller.
	Data []byte

	// Address is the peripheral the request was sent to.
	Address twowire.Address

	// Elapsed is the time from the start of the transmission until the
	// outcome was known. For a timed out request it equals the timeout.
	Elapsed timing.Micros

	// TimedOut is set when the peripheral did not answer in time.
	TimedOut bool

	// Dropped counts the reply bytes discarded because the reply did not fit
	// into MaxMessageSize.
	Dropped int
}

// Len returns the number of reply bytes.
func (r Response) Len() int {
	return len(r.Data)
}

// Truncated reports whether bytes were dropped from the reply.
func (r Response) Truncated() bool {
	return r.Dropped > 0
}

func (r Response) String() string {
	if r.TimedOut {
		return fmt.Sprintf("%s <- %s timed out after %s", r.ID, r.Address, r.Elapsed)
	}

	return fmt.Sprintf("%s <- %s %q in %s", r.ID, r.Address, r.Data, r.Elapsed)
}
