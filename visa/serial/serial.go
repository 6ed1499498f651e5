// Package serial implements a visa backend for SCPI instruments attached over
// RS-232 or USB-serial adapters.
//
// Resource names use the ASRL form, e.g. "ASRL/dev/ttyUSB0::INSTR". Commands
// are written line-terminated; responses are read up to the configured
// terminator byte or the read timeout.
package serial

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/ILoveBacteria/test-instrument-automation/visa"
)

const (
	DefaultBaudRate    = 9600
	DefaultReadTimeout = 2 * time.Second
	DefaultTerminator  = '\n'
)

// Backend opens serial-attached instruments for ASRL resource names.
type Backend struct {
	baudRate    int
	readTimeout time.Duration
	terminator  byte
}

var _ visa.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option interface {
	apply(*Backend) error
}

type optFunc func(*Backend) error

func (f optFunc) apply(b *Backend) error { return f(b) }

// WithBaudRate sets the serial baud rate. Default 9600.
func WithBaudRate(rate int) Option {
	return optFunc(func(b *Backend) error {
		if rate <= 0 {
			return fmt.Errorf("serial: baud rate %d must be positive", rate)
		}
		b.baudRate = rate
		return nil
	})
}

// WithReadTimeout sets the per-read timeout. Default 2s.
func WithReadTimeout(d time.Duration) Option {
	return optFunc(func(b *Backend) error {
		if d <= 0 {
			return fmt.Errorf("serial: read timeout %v must be positive", d)
		}
		b.readTimeout = d
		return nil
	})
}

// WithTerminator sets the response terminator byte. Default '\n'.
func WithTerminator(term byte) Option {
	return optFunc(func(b *Backend) error {
		b.terminator = term
		return nil
	})
}

// NewBackend creates a serial Backend with the given options.
func NewBackend(opts ...Option) (*Backend, error) {
	b := &Backend{
		baudRate:    DefaultBaudRate,
		readTimeout: DefaultReadTimeout,
		terminator:  DefaultTerminator,
	}
	for _, opt := range opts {
		if err := opt.apply(b); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Open opens the serial port named by the ASRL resource.
func (b *Backend) Open(name visa.ResourceName) (visa.Instrument, error) {
	if name.Interface != visa.InterfaceASRL {
		return nil, fmt.Errorf("serial: %w: %s", visa.ErrUnknownInterface, name.Interface)
	}

	mode := &serial.Mode{
		BaudRate: b.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", name.Port, err)
	}
	if err := port.SetReadTimeout(b.readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("serial: set read timeout: %w", err)
	}

	return &Instrument{
		port:       port,
		terminator: b.terminator,
	}, nil
}

// Instrument is one open serial-attached device.
type Instrument struct {
	port       serial.Port
	terminator byte
	closed     bool
}

var _ visa.Instrument = (*Instrument)(nil)

func (s *Instrument) Write(cmd string) error {
	if s.closed {
		return visa.ErrInstrumentClosed
	}

	if _, err := s.port.Write(append([]byte(cmd), s.terminator)); err != nil {
		return fmt.Errorf("serial: write: %w", err)
	}

	return nil
}

// Read reads bytes until the terminator or the port read timeout. A read that
// times out with no data reads as visa.ErrReadTimeout.
func (s *Instrument) Read() ([]byte, error) {
	if s.closed {
		return nil, visa.ErrInstrumentClosed
	}

	var resp []byte
	buf := make([]byte, 1)
	for {
		n, err := s.port.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("serial: read: %w", err)
		}
		if n == 0 {
			// go.bug.st/serial signals a read timeout as a zero-length read.
			if len(resp) == 0 {
				return nil, fmt.Errorf("serial: %w", visa.ErrReadTimeout)
			}
			return resp, nil
		}
		if buf[0] == s.terminator {
			return resp, nil
		}
		resp = append(resp, buf[0])
	}
}

func (s *Instrument) Query(cmd string) ([]byte, error) {
	if err := s.Write(cmd); err != nil {
		return nil, err
	}

	return s.Read()
}

// Clear flushes both port buffers. Serial instruments have no bus-level device
// clear; discarding stale I/O is the closest equivalent.
func (s *Instrument) Clear() error {
	if s.closed {
		return visa.ErrInstrumentClosed
	}

	if err := s.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("serial: reset input buffer: %w", err)
	}
	if err := s.port.ResetOutputBuffer(); err != nil {
		return fmt.Errorf("serial: reset output buffer: %w", err)
	}

	return nil
}

// Trigger sends the SCPI *TRG command; serial links carry no GET bus signal.
func (s *Instrument) Trigger() error {
	return s.Write("*TRG")
}

// ReadStatusByte queries *STB? in place of a GPIB serial poll.
func (s *Instrument) ReadStatusByte() (byte, error) {
	resp, err := s.Query("*STB?")
	if err != nil {
		return 0, err
	}

	var stb int
	if _, err := fmt.Sscanf(string(resp), "%d", &stb); err != nil {
		return 0, fmt.Errorf("serial: parse status byte %q: %w", resp, err)
	}

	return byte(stb), nil
}

func (s *Instrument) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	return s.port.Close()
}
