package visa

import "errors"

var (
	// ErrInvalidResourceName indicates that a resource name string does not
	// follow the "<interface>::<address>::INSTR" form.
	ErrInvalidResourceName = errors.New("invalid resource name")

	// ErrUnknownInterface indicates that no backend is registered for the
	// interface kind of a resource name.
	ErrUnknownInterface = errors.New("no backend registered for interface")

	// ErrManagerClosed indicates an operation on a closed ResourceManager.
	ErrManagerClosed = errors.New("resource manager is closed")

	// ErrInstrumentClosed indicates an operation on a closed Instrument handle.
	ErrInstrumentClosed = errors.New("instrument is closed")

	// ErrDeviceNotPresent indicates that no device answers at the addressed
	// resource.
	ErrDeviceNotPresent = errors.New("no device present at address")

	// ErrReadTimeout indicates that a device read did not complete within the
	// configured instrument timeout.
	ErrReadTimeout = errors.New("instrument read timeout")
)
