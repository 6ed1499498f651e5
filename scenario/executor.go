package scenario

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ILoveBacteria/test-instrument-automation/event"
	"github.com/ILoveBacteria/test-instrument-automation/instrument"
	"github.com/ILoveBacteria/test-instrument-automation/logger"
)

// readBufferSize bounds one read-step response.
const readBufferSize = 1024

// Executor runs a scenario's steps in order against a driver and its
// adapter. Steps run strictly sequentially; the first failure stops the run.
// Progress and measurement events go to the bus, when one is attached.
type Executor struct {
	driver  instrument.Driver
	adapter instrument.Adapter
	bus     *event.Bus
	logger  logger.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption interface {
	apply(*Executor)
}

type execOptFunc func(*Executor)

func (f execOptFunc) apply(e *Executor) { f(e) }

// WithBus attaches an event bus; without one, events are not published.
func WithBus(bus *event.Bus) ExecutorOption {
	return execOptFunc(func(e *Executor) { e.bus = bus })
}

// WithLogger overrides the executor logger.
func WithLogger(l logger.Logger) ExecutorOption {
	return execOptFunc(func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	})
}

func NewExecutor(driver instrument.Driver, adapter instrument.Adapter, opts ...ExecutorOption) *Executor {
	e := &Executor{
		driver:  driver,
		adapter: adapter,
		logger:  logger.GetLogger(),
	}
	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

// Run validates s and executes its steps in order. The context is checked
// between steps; an in-flight instrument operation is not interrupted.
// The first failing step aborts the run, wrapped with the step's position.
func (e *Executor) Run(ctx context.Context, s *Scenario) error {
	if err := s.Validate(); err != nil {
		return err
	}

	e.logger.Info("scenario started", "scenario", s.Name, "device", s.Device, "steps", len(s.Steps))
	e.publishProgress(s, fmt.Sprintf("scenario %q started", s.Name))

	for i := range s.Steps {
		step := &s.Steps[i]

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scenario: step %d: %w", i+1, err)
		}

		e.logger.Debug("executing step", "scenario", s.Name, "step", i+1, "comment", step.Comment)
		if err := e.runStep(s, step); err != nil {
			err = fmt.Errorf("scenario: step %d (%s): %w", i+1, stepLabel(step), err)
			e.logger.Error("step failed", "scenario", s.Name, "step", i+1, "error", err)
			e.publishError(s, err.Error())

			return err
		}
		e.publishProgress(s, fmt.Sprintf("step %d/%d done", i+1, len(s.Steps)))
	}

	e.logger.Info("scenario finished", "scenario", s.Name)
	e.publishProgress(s, fmt.Sprintf("scenario %q finished", s.Name))

	return nil
}

func (e *Executor) runStep(s *Scenario, step *Step) error {
	switch {
	case step.Command != "":
		return e.adapter.Write(step.Command)
	case step.Function != "":
		return e.runFunction(step)
	default:
		return e.runRead(s, step)
	}
}

func (e *Executor) runFunction(step *Step) error {
	switch step.Function {
	case FuncMeasureVoltage:
		vm, ok := e.driver.(instrument.VoltageMeasurer)
		if !ok {
			return fmt.Errorf("%w: %q not supported by driver", ErrUnknownFunction, step.Function)
		}
		return vm.MeasureVoltage(step.ReadingTimes, step.IntervalDuration())
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFunction, step.Function)
	}
}

func (e *Executor) runRead(s *Scenario, step *Step) error {
	resp, err := e.adapter.Read(readBufferSize)
	if err != nil {
		return err
	}
	resp = strings.TrimSpace(resp)

	if step.Print {
		e.logger.Info("instrument response", "scenario", s.Name, "response", resp)
	}
	if step.SaveToFile != "" {
		if err := appendLine(step.SaveToFile, resp); err != nil {
			return err
		}
	}
	e.publishReading(s, step, resp)

	return nil
}

// publishReading publishes a read response as a measurement when it parses
// as a number, otherwise as progress.
func (e *Executor) publishReading(s *Scenario, step *Step, resp string) {
	if e.bus == nil {
		return
	}

	value, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		e.bus.Publish(event.NewProgress(s.Device, resp))
		return
	}

	valueType := step.ValueType
	if valueType == "" {
		valueType = "unknown"
	}
	valueUnit := step.ValueUnit
	if valueUnit == "" {
		valueUnit = "unknown"
	}
	e.bus.Publish(event.NewMeasurement(s.Device, event.Measurement{
		Value:     value,
		ValueType: valueType,
		ValueUnit: valueUnit,
	}))
}

func (e *Executor) publishProgress(s *Scenario, message string) {
	if e.bus != nil {
		e.bus.Publish(event.NewProgress(s.Device, message))
	}
}

func (e *Executor) publishError(s *Scenario, message string) {
	if e.bus != nil {
		e.bus.Publish(event.NewError(s.Device, message))
	}
}

func stepLabel(step *Step) string {
	switch {
	case step.Comment != "":
		return step.Comment
	case step.Command != "":
		return step.Command
	case step.Function != "":
		return step.Function
	default:
		return "read"
	}
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("scenario: open output file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("scenario: write output file: %w", err)
	}

	return nil
}
