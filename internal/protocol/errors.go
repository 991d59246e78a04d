package protocol

import "errors"

// Domain errors for the protocol package.
var (
	// ErrFrameTooLarge is returned when a frame header declares a payload
	// larger than the protocol allows. The stream is considered desynced
	// and the connection must be torn down and re-established.
	ErrFrameTooLarge = errors.New("protocol: declared frame length exceeds limit")

	// ErrShortFrame is returned when a payload is too short to hold the
	// structure being decoded.
	ErrShortFrame = errors.New("protocol: frame payload too short")

	// ErrBadVersion is returned when a device version string cannot be
	// parsed.
	ErrBadVersion = errors.New("protocol: unparseable device version")

	// ErrFieldTooLong is returned when a network-configuration field does
	// not fit its fixed-width slot.
	ErrFieldTooLong = errors.New("protocol: field exceeds fixed width")
)
