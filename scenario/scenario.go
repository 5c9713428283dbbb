// Package scenario describes simulation runs in YAML: the peripherals on a
// simulated bus and the requests sent to them.
package scenario

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sarchlab/i2cm/timing"
	"github.com/sarchlab/i2cm/twowire"
	"github.com/sarchlab/i2cm/twowire/simbus"
	"gopkg.in/yaml.v3"
)

// Peripheral kinds.
const (
	KindTable  = "table"
	KindEcho   = "echo"
	KindSilent = "silent"
	KindFlood  = "flood"
)

// Defaults applied to missing fields.
const (
	DefaultBusFreq      = "100kHz"
	DefaultTimeout      = 100 * time.Millisecond
	DefaultPollInterval = 500 * time.Microsecond
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid scenario")

// Scenario is a simulated bus with the requests to send over it.
type Scenario struct {
	Name         string        `yaml:"name"`
	BusFreq      string        `yaml:"bus_freq"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Peripherals  []Peripheral  `yaml:"peripherals"`
	Requests     []Request     `yaml:"requests"`
}

// Peripheral is a device model on the bus.
type Peripheral struct {
	Address string            `yaml:"address"`
	Kind    string            `yaml:"kind"`
	Delay   time.Duration     `yaml:"delay"`
	Replies map[string]string `yaml:"replies"`
	Default *string           `yaml:"default"`
	Size    int               `yaml:"size"`
}

// Request is a message sent Repeat times.
type Request struct {
	Address string `yaml:"address"`
	Message string `yaml:"message"`
	Repeat  int    `yaml:"repeat"`
}

// Message is one request ready to send.
type Message struct {
	Address twowire.Address
	Data    []byte
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return s, nil
}

// Parse decodes and validates a scenario.
func Parse(data []byte) (*Scenario, error) {
	s := &Scenario{}

	err := yaml.Unmarshal(data, s)
	if err != nil {
		return nil, err
	}

	s.applyDefaults()

	err = s.Validate()
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Default returns a scenario with a responding, a silent and a flooding
// peripheral.
func Default() *Scenario {
	pong := "PONG"

	s := &Scenario{
		Name: "ping-pong",
		Peripherals: []Peripheral{
			{
				Address: "8",
				Kind:    KindTable,
				Delay:   2 * time.Millisecond,
				Replies: map[string]string{"PING": pong},
			},
			{Address: "12", Kind: KindSilent},
			{Address: "20", Kind: KindFlood, Size: 200, Delay: time.Millisecond},
		},
		Requests: []Request{
			{Address: "8", Message: "PING"},
			{Address: "12", Message: "PING"},
			{Address: "20", Message: "DUMP"},
		},
	}
	s.applyDefaults()

	return s
}

func (s *Scenario) applyDefaults() {
	if s.BusFreq == "" {
		s.BusFreq = DefaultBusFreq
	}

	if s.Timeout == 0 {
		s.Timeout = DefaultTimeout
	}

	if s.PollInterval == 0 {
		s.PollInterval = DefaultPollInterval
	}

	for i := range s.Requests {
		if s.Requests[i].Repeat == 0 {
			s.Requests[i].Repeat = 1
		}
	}
}

// Validate checks that the scenario can be run.
func (s *Scenario) Validate() error {
	if _, err := s.Freq(); err != nil {
		return fmt.Errorf("%w: bus_freq: %v", ErrInvalid, err)
	}

	if _, err := timing.FromDuration(s.Timeout); err != nil || s.Timeout <= 0 {
		return fmt.Errorf("%w: timeout %s", ErrInvalid, s.Timeout)
	}

	if s.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval %s", ErrInvalid, s.PollInterval)
	}

	seen := make(map[twowire.Address]bool)

	for i, p := range s.Peripherals {
		addr, _, err := p.validate()
		if err != nil {
			return fmt.Errorf("%w: peripheral %d: %v", ErrInvalid, i, err)
		}

		if seen[addr] {
			return fmt.Errorf("%w: peripheral %d: address %s used twice",
				ErrInvalid, i, addr)
		}

		seen[addr] = true
	}

	for i, r := range s.Requests {
		if _, err := r.message(); err != nil {
			return fmt.Errorf("%w: request %d: %v", ErrInvalid, i, err)
		}

		if r.Repeat < 0 {
			return fmt.Errorf("%w: request %d: negative repeat", ErrInvalid, i)
		}
	}

	return nil
}

// Freq returns the bus frequency.
func (s *Scenario) Freq() (timing.Freq, error) {
	return timing.ParseFreq(s.BusFreq)
}

// AttachTo attaches the peripherals to a simulated bus.
func (s *Scenario) AttachTo(bus *simbus.Bus) error {
	for i, p := range s.Peripherals {
		addr, delay, err := p.validate()
		if err != nil {
			return fmt.Errorf("%w: peripheral %d: %v", ErrInvalid, i, err)
		}

		bus.Attach(addr, p.model(delay))
	}

	return nil
}

// Messages lists the requests in the order they are sent, repeats expanded.
func (s *Scenario) Messages() []Message {
	var msgs []Message

	for _, r := range s.Requests {
		m, err := r.message()
		if err != nil {
			continue
		}

		for i := 0; i < r.Repeat; i++ {
			msgs = append(msgs, Message{
				Address: m.Address,
				Data:    append([]byte{}, m.Data...),
			})
		}
	}

	return msgs
}

func (p Peripheral) validate() (twowire.Address, timing.Micros, error) {
	addr, err := twowire.ParseAddress(p.Address)
	if err != nil {
		return 0, 0, err
	}

	delay, err := timing.FromDuration(p.Delay)
	if err != nil {
		return 0, 0, fmt.Errorf("delay: %w", err)
	}

	switch p.Kind {
	case KindTable, KindEcho, KindSilent:
	case KindFlood:
		if p.Size <= 0 {
			return 0, 0, fmt.Errorf("flood needs a positive size")
		}
	default:
		return 0, 0, fmt.Errorf("unknown kind %q", p.Kind)
	}

	return addr, delay, nil
}

func (p Peripheral) model(delay timing.Micros) simbus.Peripheral {

	switch p.Kind {
	case KindEcho:
		return simbus.Echo{Delay: delay}
	case KindSilent:
		return simbus.Silent{}
	case KindFlood:
		return simbus.Flood{Size: p.Size, Delay: delay}
	}

	table := simbus.NewTable(delay)
	for cmd, reply := range p.Replies {
		table.On(cmd, decode(reply))
	}

	if p.Default != nil {
		table.Default = decode(*p.Default)
	}

	return table
}

func (r Request) message() (Message, error) {
	addr, err := twowire.ParseAddress(r.Address)
	if err != nil {
		return Message{}, err
	}

	if strings.HasPrefix(r.Message, "hex:") {
		if _, err := hex.DecodeString(r.Message[4:]); err != nil {
			return Message{}, fmt.Errorf("message: %v", err)
		}
	}

	return Message{Address: addr, Data: decode(r.Message)}, nil
}

// decode turns "hex:..." into raw bytes and returns other text as is.
func decode(s string) []byte {
	if strings.HasPrefix(s, "hex:") {
		data, err := hex.DecodeString(s[4:])
		if err == nil {
			return data
		}
	}

	return []byte(s)
}
