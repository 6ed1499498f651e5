package instrument

import (
	"errors"
	"time"
)

var (
	// ErrUnknownDeviceType indicates a device tag outside the registry's
	// closed enumeration.
	ErrUnknownDeviceType = errors.New("unknown device type")

	// ErrNoSRQSupport indicates an adapter without service-request polling
	// used for an operation that waits on SRQ.
	ErrNoSRQSupport = errors.New("adapter does not support SRQ polling")

	// ErrOperationTimeout indicates that an instrument operation did not
	// report completion within the caller's polling deadline. It is distinct
	// from any transport timeout.
	ErrOperationTimeout = errors.New("timed out waiting for operation complete")
)

// Adapter is the request/response capability drivers are built on. It is
// satisfied by prologix.Controller; tests substitute in-memory fakes.
type Adapter interface {
	// Write sends one command; no response is expected.
	Write(cmd string) error
	// Read reads up to n bytes of response data.
	Read(n int) (string, error)
	// Query performs Write followed by Read.
	Query(cmd string) (string, error)
}

// ServiceRequester is the optional SRQ-polling capability some operations
// (operation-complete waits) require of their adapter.
type ServiceRequester interface {
	ServiceRequest() (bool, error)
}

// VoltageMeasurer is implemented by drivers that can run a timed burst of
// voltage readings; the scenario engine dispatches measure_voltage steps
// through it.
type VoltageMeasurer interface {
	MeasureVoltage(readingTimes int, interval time.Duration) error
}

// Driver is the surface every registered device driver shares.
type Driver interface {
	// Setup initializes the instrument for remote operation.
	Setup() error
	// Identify returns the instrument's identification string.
	Identify() (string, error)
	// Reset restores the instrument's power-on state.
	Reset() error
}

// readBufferSize matches the adapters' default response buffer.
const readBufferSize = 1024
