package simulation

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/rs/xid"
	"github.com/sarchlab/i2cm/coordinator"
	"github.com/sarchlab/i2cm/datarecording"
	"github.com/sarchlab/i2cm/hooking"
	"github.com/sarchlab/i2cm/monitoring"
	"github.com/sarchlab/i2cm/runner"
	"github.com/sarchlab/i2cm/scenario"
	"github.com/sarchlab/i2cm/timing"
	"github.com/sarchlab/i2cm/tracing"
	"github.com/sarchlab/i2cm/twowire/simbus"
)

// mailboxHeadroom leaves room for requests from the monitor next to the
// scripted ones.
const mailboxHeadroom = 16

// Builder can be used to build a simulation.
type Builder struct {
	scenario       *scenario.Scenario
	monitorOn      bool
	monitorPort    int
	recordOn       bool
	outputFileName string
	logger         logr.Logger
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		logger: logr.Discard(),
	}
}

// WithScenario sets the scenario to run. The default scenario is used when
// none is set.
func (b Builder) WithScenario(s *scenario.Scenario) Builder {
	b.scenario = s
	return b
}

// WithMonitoring serves the simulation over HTTP.
func (b Builder) WithMonitoring() Builder {
	b.monitorOn = true
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithRecording records every transaction into an SQLite file. An empty
// file name picks a generated one.
func (b Builder) WithRecording(filename string) Builder {
	b.recordOn = true
	b.outputFileName = filename

	return b
}

// WithLogger logs every coordinator event at verbosity 1.
func (b Builder) WithLogger(logger logr.Logger) Builder {
	b.logger = logger
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}
}

// Build builds the simulation.
func (b Builder) Build() (*Simulation, error) {
	b.parametersMustBeValid()

	sc := b.scenario
	if sc == nil {
		sc = scenario.Default()
	}

	err := sc.Validate()
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		id:       xid.New().String(),
		scenario: sc,
		clock:    timing.NewManualClock(0),
		latency:  tracing.NewLatencyTracer(),
	}

	err = b.buildBus(s)
	if err != nil {
		return nil, err
	}

	err = b.buildCoordinator(s)
	if err != nil {
		return nil, err
	}

	if b.recordOn {
		err = b.buildRecorder(s)
		if err != nil {
			return nil, err
		}
	}

	s.runner = runner.MakeBuilder().
		WithCoordinator(s.coord).
		WithInterval(sc.PollInterval).
		WithMailboxSize(len(sc.Messages()) + mailboxHeadroom).
		Build()

	if b.monitorOn {
		err = b.startMonitor(s)
		if err != nil {
			s.Terminate()
			return nil, err
		}
	}

	return s, nil
}

func (b Builder) buildBus(s *Simulation) error {
	s.bus = simbus.MakeBuilder().
		WithClock(s.clock).
		WithoutCountLimit().
		Build()

	return s.scenario.AttachTo(s.bus)
}

func (b Builder) buildCoordinator(s *Simulation) error {
	s.coord = coordinator.MakeBuilder().
		WithDriver(s.bus).
		WithClock(s.clock).
		WithTimeout(s.scenario.Timeout).
		Build("Coordinator")

	freq, err := s.scenario.Freq()
	if err != nil {
		return err
	}

	err = s.coord.Setup(freq)
	if err != nil {
		return fmt.Errorf("setup bus: %w", err)
	}

	s.coord.AcceptHook(hooking.NewLogHook(b.logger, 1))
	tracing.CollectTrace(s.coord, s.latency)

	return nil
}

func (b Builder) buildRecorder(s *Simulation) error {
	outputPath := b.outputFileName
	if outputPath == "" {
		outputPath = "i2cm_sim_" + s.id
	}

	recorder, err := datarecording.New(outputPath)
	if err != nil {
		return err
	}

	s.dataRecorder = recorder
	s.transactionTracer = tracing.NewTransactionTracer(recorder)
	tracing.CollectTrace(s.coord, s.transactionTracer)

	return nil
}

func (b Builder) startMonitor(s *Simulation) error {
	s.monitor = monitoring.NewMonitor(s.runner).
		WithPortNumber(b.monitorPort).
		WithStats(s.latency)

	_, err := s.monitor.StartServer()

	return err
}
