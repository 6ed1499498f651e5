package prologix

import "errors"

var (
	// ErrReadTimeoutRange indicates a bridge-side read timeout outside the
	// Prologix range of [1ms, 3s].
	ErrReadTimeoutRange = errors.New("read timeout out of range [1ms, 3s]")

	// ErrTimeoutOrder indicates a bridge-side read timeout that is not
	// strictly less than the transport timeout. The ordering guarantees a
	// device timeout is observed as an explicit "Error: ..." reply rather
	// than a socket timeout.
	ErrTimeoutOrder = errors.New("read timeout must be less than transport timeout")

	// ErrPrimaryAddrRange indicates a primary GPIB address outside [0, 30].
	ErrPrimaryAddrRange = errors.New("primary address out of range [0, 30]")

	// ErrSecondaryAddrRange indicates a secondary GPIB address outside [0, 15].
	ErrSecondaryAddrRange = errors.New("secondary address out of range [0, 15]")

	// ErrInvalidEOSMode indicates an end-of-string mode outside [0, 3].
	ErrInvalidEOSMode = errors.New("EOS mode out of range [0, 3]")

	// ErrTooManyTriggerAddrs indicates a group-execute-trigger targeted at
	// more than 15 addresses.
	ErrTooManyTriggerAddrs = errors.New("trigger accepts at most 15 addresses")

	// ErrInvalidReply indicates a bridge reply that cannot be decoded into the
	// expected typed value.
	ErrInvalidReply = errors.New("cannot decode bridge reply")

	// ErrSRQWaitTimeout indicates that the service-request line was not
	// asserted within the caller's polling deadline. It is distinct from any
	// transport-level timeout.
	ErrSRQWaitTimeout = errors.New("timed out waiting for SRQ")

	// ErrClosed indicates an operation on a closed Controller.
	ErrClosed = errors.New("controller is closed")
)

// BridgeError is an "Error: ..." protocol reply from the bridge: the
// instrument could not be reached, a device read timed out, or a meta-command
// argument was rejected bridge-side.
//
// The protocol frames errors by string prefix only, so an instrument payload
// that itself begins with "Error: " is indistinguishable from a bridge error.
// The catalogue has no structured error envelope to disambiguate the two.
type BridgeError struct {
	Message string
}

func (e *BridgeError) Error() string {
	return "prologix: bridge error: " + e.Message
}
