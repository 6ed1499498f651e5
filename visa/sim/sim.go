// Package sim implements a simulated instrument backend for the visa package.
//
// Device behavior is declared as data: a set of fixed query/response dialogues,
// named properties with getter/setter command grammars, an error response for
// unmatched queries, and a status byte. Definitions are written in YAML (see
// ParseDefinitions) or built in code (see DefaultDefinitions). Each definition
// is bound to one or more primary GPIB addresses; opening a resource at a bound
// address yields a fresh simulated instrument.
//
// The simulator exists so the bridge and the instrument drivers can be
// exercised end to end with no hardware attached.
package sim

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ILoveBacteria/test-instrument-automation/visa"
)

// Exchange is one fixed query/response pair.
type Exchange struct {
	Q string `yaml:"q"`
	R string `yaml:"r,omitempty"`
}

// Property is a named simulated register with a getter and/or setter grammar.
// The placeholder "{}" in a getter response or setter query stands for the
// property value.
type Property struct {
	Name    string    `yaml:"name"`
	Default string    `yaml:"default"`
	Getter  *Exchange `yaml:"getter,omitempty"`
	Setter  *Exchange `yaml:"setter,omitempty"`
}

// DeviceDefinition declares the behavior of one simulated device.
type DeviceDefinition struct {
	Name          string     `yaml:"name"`
	Addresses     []int      `yaml:"addresses"`
	Dialogues     []Exchange `yaml:"dialogues,omitempty"`
	Properties    []Property `yaml:"properties,omitempty"`
	ErrorResponse string     `yaml:"error_response,omitempty"`
	StatusByte    byte       `yaml:"status_byte,omitempty"`
}

// Definitions is the root of a simulator definition document.
type Definitions struct {
	Devices []DeviceDefinition `yaml:"devices"`
}

// ParseDefinitions decodes a YAML definition document. Unknown fields are
// rejected so definition typos fail at load time.
func ParseDefinitions(data []byte) (*Definitions, error) {
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)

	var defs Definitions
	if err := dec.Decode(&defs); err != nil {
		return nil, fmt.Errorf("sim: decode definitions: %w", err)
	}
	if err := defs.validate(); err != nil {
		return nil, err
	}

	return &defs, nil
}

// LoadDefinitions reads and parses a YAML definition file.
func LoadDefinitions(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sim: read definitions: %w", err)
	}

	return ParseDefinitions(data)
}

func (d *Definitions) validate() error {
	if len(d.Devices) == 0 {
		return fmt.Errorf("sim: definition document declares no devices")
	}

	seen := make(map[int]string)
	for _, dev := range d.Devices {
		if dev.Name == "" {
			return fmt.Errorf("sim: device with empty name")
		}
		if len(dev.Addresses) == 0 {
			return fmt.Errorf("sim: device %q is bound to no address", dev.Name)
		}
		for _, addr := range dev.Addresses {
			if addr < visa.MinPrimaryAddr || addr > visa.MaxPrimaryAddr {
				return fmt.Errorf("sim: device %q address %d out of range [%d, %d]",
					dev.Name, addr, visa.MinPrimaryAddr, visa.MaxPrimaryAddr)
			}
			if prev, dup := seen[addr]; dup {
				return fmt.Errorf("sim: address %d bound to both %q and %q", addr, prev, dev.Name)
			}
			seen[addr] = dev.Name
		}
		for _, p := range dev.Properties {
			if p.Name == "" {
				return fmt.Errorf("sim: device %q has a property with empty name", dev.Name)
			}
			if p.Getter == nil && p.Setter == nil {
				return fmt.Errorf("sim: device %q property %q has neither getter nor setter", dev.Name, p.Name)
			}
		}
	}

	return nil
}

// Backend is a visa.Backend serving simulated instruments.
type Backend struct {
	byAddr map[int]*DeviceDefinition
}

var _ visa.Backend = (*Backend)(nil)

// NewBackend builds a Backend from validated definitions.
func NewBackend(defs *Definitions) (*Backend, error) {
	if err := defs.validate(); err != nil {
		return nil, err
	}

	b := &Backend{byAddr: make(map[int]*DeviceDefinition)}
	for i := range defs.Devices {
		dev := &defs.Devices[i]
		for _, addr := range dev.Addresses {
			b.byAddr[addr] = dev
		}
	}

	return b, nil
}

// Open yields a fresh simulated instrument for the device bound to the primary
// address of name. Unbound addresses fail with visa.ErrDeviceNotPresent.
func (b *Backend) Open(name visa.ResourceName) (visa.Instrument, error) {
	if name.Interface != visa.InterfaceGPIB {
		return nil, fmt.Errorf("sim: %w: %s", visa.ErrUnknownInterface, name.Interface)
	}

	def, ok := b.byAddr[name.Primary]
	if !ok {
		return nil, fmt.Errorf("sim: %w: GPIB %d", visa.ErrDeviceNotPresent, name.Primary)
	}

	return newInstrument(def), nil
}

// Instrument is one simulated device session.
type Instrument struct {
	mu      sync.Mutex
	def     *DeviceDefinition
	props   map[string]string
	pending []string
	status  byte
	closed  bool
}

var _ visa.Instrument = (*Instrument)(nil)

func newInstrument(def *DeviceDefinition) *Instrument {
	inst := &Instrument{
		def:    def,
		props:  make(map[string]string, len(def.Properties)),
		status: def.StatusByte,
	}
	for _, p := range def.Properties {
		inst.props[p.Name] = p.Default
	}

	return inst
}

// Write matches cmd against the device grammar: fixed dialogues first, then
// property getters, then property setters. A query (command containing '?')
// that matches nothing queues the device's error response; a plain write that
// matches nothing is accepted silently, as real instruments do.
func (s *Instrument) Write(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return visa.ErrInstrumentClosed
	}

	cmd = strings.TrimSpace(cmd)

	for _, d := range s.def.Dialogues {
		if d.Q == cmd {
			if d.R != "" {
				s.pending = append(s.pending, d.R)
			}
			return nil
		}
	}

	for _, p := range s.def.Properties {
		if p.Getter != nil && p.Getter.Q == cmd {
			s.pending = append(s.pending, strings.ReplaceAll(p.Getter.R, "{}", s.props[p.Name]))
			return nil
		}
	}

	for _, p := range s.def.Properties {
		if p.Setter == nil {
			continue
		}
		if value, ok := matchSetter(p.Setter.Q, cmd); ok {
			s.props[p.Name] = value
			return nil
		}
	}

	if strings.Contains(cmd, "?") && s.def.ErrorResponse != "" {
		s.pending = append(s.pending, s.def.ErrorResponse)
	}

	return nil
}

// Read pops the oldest queued response. An empty queue reads as a device
// timeout, matching an unanswered bus read.
func (s *Instrument) Read() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, visa.ErrInstrumentClosed
	}
	if len(s.pending) == 0 {
		return nil, visa.ErrReadTimeout
	}

	resp := s.pending[0]
	s.pending = s.pending[1:]

	return []byte(resp), nil
}

func (s *Instrument) Query(cmd string) ([]byte, error) {
	if err := s.Write(cmd); err != nil {
		return nil, err
	}

	return s.Read()
}

// Clear discards queued responses and restores property defaults.
func (s *Instrument) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return visa.ErrInstrumentClosed
	}

	s.pending = nil
	for _, p := range s.def.Properties {
		s.props[p.Name] = p.Default
	}

	return nil
}

func (s *Instrument) Trigger() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return visa.ErrInstrumentClosed
	}

	return nil
}

func (s *Instrument) ReadStatusByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, visa.ErrInstrumentClosed
	}

	return s.status, nil
}

// SetStatusByte overrides the device status byte; tests use it to raise SRQ
// (bit 6) on demand.
func (s *Instrument) SetStatusByte(b byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = b
}

func (s *Instrument) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true

	return nil
}

// matchSetter matches cmd against a setter pattern containing one "{}"
// placeholder and extracts the value the placeholder covers.
func matchSetter(pattern, cmd string) (string, bool) {
	idx := strings.Index(pattern, "{}")
	if idx < 0 {
		return "", pattern == cmd
	}

	prefix := pattern[:idx]
	suffix := pattern[idx+2:]
	if !strings.HasPrefix(cmd, prefix) || !strings.HasSuffix(cmd, suffix) {
		return "", false
	}
	value := cmd[len(prefix) : len(cmd)-len(suffix)]
	if value == "" {
		return "", false
	}

	return strings.TrimSpace(value), true
}
