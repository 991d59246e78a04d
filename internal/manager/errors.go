package manager

import "errors"

// Domain errors for the device manager.
var (
	// ErrDriverNotFound is returned when no registration matches a device.
	ErrDriverNotFound = errors.New("manager: no driver matches device")

	// ErrInvalidRegistration is returned for a registration missing its ID
	// or factory.
	ErrInvalidRegistration = errors.New("manager: invalid driver registration")

	// ErrNoDevices is returned when an automatic connect finds nothing.
	ErrNoDevices = errors.New("manager: no devices detected")

	// ErrNotConnected is returned when no device connection is active.
	ErrNotConnected = errors.New("manager: no active connection")

	// ErrAlreadyConnected is returned when a device is already connected
	// on the requested connection string.
	ErrAlreadyConnected = errors.New("manager: device already connected")

	// ErrInvalidDeviceCount is returned when a multi-device driver is
	// requested with an unsupported number of units.
	ErrInvalidDeviceCount = errors.New("manager: multi-device capture requires 2-5 units")

	// ErrDisposed is returned when using a manager after Dispose.
	ErrDisposed = errors.New("manager: disposed")
)
