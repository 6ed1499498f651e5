// Package scenario loads YAML test scenarios and executes them against an
// instrument driver. A scenario binds a device type and GPIB address to an
// ordered list of steps; each step sends a raw command, calls a named driver
// function, or reads a response back.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ILoveBacteria/test-instrument-automation/instrument"
	"github.com/ILoveBacteria/test-instrument-automation/prologix"
)

var (
	// ErrStepShape indicates a step that does not set exactly one of
	// command, function, or read.
	ErrStepShape = errors.New("scenario: step must set exactly one of command, function, read")

	// ErrUnknownFunction indicates a function step naming a function the
	// executor does not dispatch.
	ErrUnknownFunction = errors.New("scenario: unknown function")

	// ErrNoSteps indicates a scenario with an empty step list.
	ErrNoSteps = errors.New("scenario: scenario has no steps")
)

// FuncMeasureVoltage is the only function steps may currently name.
const FuncMeasureVoltage = "measure_voltage"

// Step is one scenario action. Exactly one of Command, Function, or Read is
// set; the remaining fields qualify that action.
type Step struct {
	// Comment annotates the step in logs and progress events.
	Comment string `yaml:"comment"`

	// Command is a raw instrument command sent verbatim.
	Command string `yaml:"command"`

	// Function names a driver function; parameters follow.
	Function     string  `yaml:"function"`
	ReadingTimes int     `yaml:"reading_times"`
	Interval     float64 `yaml:"interval"` // seconds

	// Read reads one response from the instrument.
	Read       bool   `yaml:"read"`
	Print      bool   `yaml:"print"`
	SaveToFile string `yaml:"save_to_file"`

	// ValueType and ValueUnit label published measurements from a read
	// step, e.g. "voltage" / "V".
	ValueType string `yaml:"value_type"`
	ValueUnit string `yaml:"value_unit"`
}

// IntervalDuration converts the step's interval from seconds.
func (s *Step) IntervalDuration() time.Duration {
	return time.Duration(s.Interval * float64(time.Second))
}

// Validate checks the step's shape and its function parameters.
func (s *Step) Validate() error {
	set := 0
	if s.Command != "" {
		set++
	}
	if s.Function != "" {
		set++
	}
	if s.Read {
		set++
	}
	if set != 1 {
		return ErrStepShape
	}

	if s.Function != "" {
		switch s.Function {
		case FuncMeasureVoltage:
			if s.ReadingTimes < 1 {
				return fmt.Errorf("scenario: reading_times %d must be >= 1", s.ReadingTimes)
			}
			if s.Interval <= 0 {
				return fmt.Errorf("scenario: interval %g must be positive", s.Interval)
			}
		default:
			return fmt.Errorf("%w: %q", ErrUnknownFunction, s.Function)
		}
	}

	return nil
}

// Scenario is one parsed scenario file.
type Scenario struct {
	Name    string `yaml:"name"`
	Device  string `yaml:"device"`
	Address int    `yaml:"address"`
	Steps   []Step `yaml:"steps"`
}

// DeviceType returns the scenario's validated device tag.
func (s *Scenario) DeviceType() (instrument.DeviceType, error) {
	return instrument.ParseDeviceType(s.Device)
}

// Validate checks the scenario header and every step.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario: scenario name is required")
	}
	if _, err := instrument.ParseDeviceType(s.Device); err != nil {
		return err
	}
	if err := prologix.NewAddress(s.Address).Validate(); err != nil {
		return fmt.Errorf("scenario: address: %w", err)
	}
	if len(s.Steps) == 0 {
		return ErrNoSteps
	}
	for i := range s.Steps {
		if err := s.Steps[i].Validate(); err != nil {
			return fmt.Errorf("scenario: step %d: %w", i+1, err)
		}
	}

	return nil
}

// Parse decodes and validates a scenario document. Unknown YAML fields are
// rejected.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("scenario: parse scenario: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return &s, nil
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read scenario file: %w", err)
	}

	return Parse(data)
}
