package bridge

import "errors"

var (
	// ErrServerClosed indicates an operation on a stopped Server.
	ErrServerClosed = errors.New("server is closed")

	// ErrAlreadyStarted indicates a second Start on a running Server.
	ErrAlreadyStarted = errors.New("server already started")

	// ErrResourceManagerNil indicates that NewServer was given no resource
	// manager.
	ErrResourceManagerNil = errors.New("resource manager is nil")
)
