package tracing

import (
	"sync"

	"github.com/sarchlab/i2cm/coordinator"
	"github.com/sarchlab/i2cm/timing"
)

// Stats summarizes the transactions seen by a LatencyTracer. Latencies only
// cover transactions that received a reply.
type Stats struct {
	Started    uint64        `json:"started"`
	Completed  uint64        `json:"completed"`
	Expired    uint64        `json:"expired"`
	Truncated  uint64        `json:"truncated"`
	BusFaults  uint64        `json:"bus_faults"`
	MinLatency timing.Micros `json:"min_latency_us"`
	MaxLatency timing.Micros `json:"max_latency_us"`
	AvgLatency float64       `json:"avg_latency_us"`
}

// LatencyTracer counts outcomes and measures reply latency.
type LatencyTracer struct {
	lock  sync.Mutex
	stats Stats
}

// NewLatencyTracer creates a new LatencyTracer
func NewLatencyTracer() *LatencyTracer {
	return &LatencyTracer{}
}

// Stats returns a snapshot of the statistics.
func (t *LatencyTracer) Stats() Stats {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.stats
}

// StartTransaction counts the request.
func (t *LatencyTracer) StartTransaction(_ coordinator.Request) {
	t.lock.Lock()
	t.stats.Started++
	t.lock.Unlock()
}

// BusFault counts the fault.
func (t *LatencyTracer) BusFault(_ error) {
	t.lock.Lock()
	t.stats.BusFaults++
	t.lock.Unlock()
}

// EndTransaction records the outcome.
func (t *LatencyTracer) EndTransaction(rsp coordinator.Response) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if rsp.TimedOut {
		t.stats.Expired++
		return
	}

	if rsp.Truncated() {
		t.stats.Truncated++
	}

	s := &t.stats
	if s.Completed == 0 || rsp.Elapsed < s.MinLatency {
		s.MinLatency = rsp.Elapsed
	}

	if rsp.Elapsed > s.MaxLatency {
		s.MaxLatency = rsp.Elapsed
	}

	s.AvgLatency = (s.AvgLatency*float64(s.Completed) + float64(rsp.Elapsed)) /
		float64(s.Completed+1)
	s.Completed++
}
