package lanet

import "errors"

// Domain errors for the lanet driver.
var (
	// ErrNotConnected is returned when an operation requires a live
	// transport but the driver is not connected.
	ErrNotConnected = errors.New("lanet: not connected")

	// ErrAlreadyConnected is returned by Connect when a connection is
	// already established.
	ErrAlreadyConnected = errors.New("lanet: already connected")

	// ErrConnectionFailed is returned when dialing the device fails.
	ErrConnectionFailed = errors.New("lanet: connection failed")

	// ErrVersionMismatch is returned when the device identifies itself
	// with an unsupported firmware version.
	ErrVersionMismatch = errors.New("lanet: unsupported device version")

	// ErrDisposed is returned when using a driver after Dispose.
	ErrDisposed = errors.New("lanet: driver disposed")

	// ErrCaptureInFlight is returned by operations that cannot run while
	// a capture is in progress.
	ErrCaptureInFlight = errors.New("lanet: capture in flight")
)
