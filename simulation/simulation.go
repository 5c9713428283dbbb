// Package simulation runs a scenario against a coordinator on a simulated bus
// in virtual time.
package simulation

import (
	"context"
	"time"

	"github.com/sarchlab/i2cm/coordinator"
	"github.com/sarchlab/i2cm/datarecording"
	"github.com/sarchlab/i2cm/monitoring"
	"github.com/sarchlab/i2cm/runner"
	"github.com/sarchlab/i2cm/scenario"
	"github.com/sarchlab/i2cm/timing"
	"github.com/sarchlab/i2cm/tracing"
	"github.com/sarchlab/i2cm/twowire/simbus"
)

// ReportFunc receives the outcome of every scripted request.
type ReportFunc func(msg scenario.Message, rsp coordinator.Response, err error)

// A Simulation wires a coordinator to a simulated bus, tracers and an
// optional monitor.
type Simulation struct {
	id       string
	scenario *scenario.Scenario
	clock    *timing.ManualClock
	bus      *simbus.Bus
	coord    *coordinator.Comp
	runner   *runner.Runner

	latency           *tracing.LatencyTracer
	dataRecorder      datarecording.DataRecorder
	transactionTracer *tracing.TransactionTracer
	monitor           *monitoring.Monitor
}

// ID returns the ID of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// Clock returns the virtual clock.
func (s *Simulation) Clock() *timing.ManualClock {
	return s.clock
}

// Bus returns the simulated bus.
func (s *Simulation) Bus() *simbus.Bus {
	return s.bus
}

// Coordinator returns the coordinator under simulation.
func (s *Simulation) Coordinator() *coordinator.Comp {
	return s.coord
}

// Runner returns the loop that drives the coordinator.
func (s *Simulation) Runner() *runner.Runner {
	return s.runner
}

// Stats returns the latency statistics collected so far.
func (s *Simulation) Stats() tracing.Stats {
	return s.latency.Stats()
}

// GetDataRecorder returns the data recorder, nil when not recording.
func (s *Simulation) GetDataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// GetMonitor returns the monitor, nil when not monitoring.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// Run sends every scripted request and returns once all outcomes have been
// reported. Each step of the loop advances the virtual clock by the poll
// interval.
func (s *Simulation) Run(ctx context.Context, report ReportFunc) error {
	for _, msg := range s.scenario.Messages() {
		msg := msg

		err := s.runner.Enqueue(ctx, runner.Job{
			Address: msg.Address,
			Message: msg.Data,
			Done: func(rsp coordinator.Response, err error) {
				if report != nil {
					report(msg, rsp, err)
				}
			},
		})
		if err != nil {
			return err
		}
	}

	for !s.runner.Idle() {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.step()
	}

	return nil
}

// Hold keeps the loop going until ctx is done, so that requests from the
// monitor are served. Virtual time follows wall-clock time while idle.
func (s *Simulation) Hold(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !s.step() {
			time.Sleep(s.scenario.PollInterval)
		}
	}
}

func (s *Simulation) step() bool {
	progress := s.runner.Step()
	s.clock.AdvanceDuration(s.scenario.PollInterval)

	return progress
}

// Terminate flushes the recording and stops the monitor.
func (s *Simulation) Terminate() {
	if s.transactionTracer != nil {
		s.transactionTracer.Terminate()
	}

	if s.dataRecorder != nil {
		_ = s.dataRecorder.Close()
	}

	if s.monitor != nil {
		_ = s.monitor.Stop()
	}
}
