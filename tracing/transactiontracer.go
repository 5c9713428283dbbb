package tracing

import (
	"encoding/hex"
	"sync"

	"github.com/sarchlab/i2cm/coordinator"
	"github.com/sarchlab/i2cm/datarecording"
)

// TransactionTableName is the table the TransactionTracer writes into.
const TransactionTableName = "i2c_transactions"

// Outcomes recorded in TransactionEntry.Outcome.
const (
	OutcomeReply   = "reply"
	OutcomeTimeout = "timeout"
)

// TransactionEntry is one row of the transaction table. Request and Reply are
// hex encoded.
type TransactionEntry struct {
	ID      string
	Address uint8
	Request string
	Reply   string
	Outcome string
	Fault   string
	SentAt  uint32
	Elapsed uint32
	Length  int
	Dropped int
}

// TransactionTracer writes every finished transaction into a data recorder.
type TransactionTracer struct {
	lock      sync.Mutex
	backend   datarecording.DataRecorder
	open      map[string]TransactionEntry
	lastFault string
}

// NewTransactionTracer creates a tracer and its table.
func NewTransactionTracer(
	backend datarecording.DataRecorder,
) *TransactionTracer {
	backend.CreateTable(TransactionTableName, TransactionEntry{})

	return &TransactionTracer{
		backend: backend,
		open:    make(map[string]TransactionEntry),
	}
}

// BusFault remembers the fault for the transaction being sent.
func (t *TransactionTracer) BusFault(err error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.lastFault = err.Error()
}

// StartTransaction opens an entry for the request.
func (t *TransactionTracer) StartTransaction(req coordinator.Request) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.open[req.ID] = TransactionEntry{
		ID:      req.ID,
		Address: uint8(req.Address),
		Request: hex.EncodeToString(req.Message),
		Fault:   t.lastFault,
		SentAt:  uint32(req.SentAt),
	}
	t.lastFault = ""
}

// EndTransaction completes the entry of the request and records it.
func (t *TransactionTracer) EndTransaction(rsp coordinator.Response) {
	t.lock.Lock()
	defer t.lock.Unlock()

	entry, found := t.open[rsp.ID]
	if !found {
		return
	}

	delete(t.open, rsp.ID)

	entry.Outcome = OutcomeReply
	if rsp.TimedOut {
		entry.Outcome = OutcomeTimeout
	}

	entry.Reply = hex.EncodeToString(rsp.Data)
	entry.Elapsed = uint32(rsp.Elapsed)
	entry.Length = rsp.Len()
	entry.Dropped = rsp.Dropped

	t.backend.InsertData(TransactionTableName, entry)
}

// Terminate writes all recorded entries.
func (t *TransactionTracer) Terminate() {
	t.backend.Flush()
}
