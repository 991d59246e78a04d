package capture

import "errors"

// Domain errors for the capture package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, capture.ErrInvalidChannel) {
//	    // handle invalid channel numbering
//	}
var (
	// ErrInvalidChannel is returned when a channel number is 24 or above,
	// or when a channel number is duplicated within a session.
	ErrInvalidChannel = errors.New("capture: invalid channel number")

	// ErrNoChannels is returned when a session has an empty channel set.
	ErrNoChannels = errors.New("capture: session has no channels")

	// ErrNoSamples is returned when a session requests zero total samples.
	ErrNoSamples = errors.New("capture: session requests no samples")

	// ErrInvalidFrequency is returned when a session's sample frequency is zero.
	ErrInvalidFrequency = errors.New("capture: invalid sample frequency")

	// ErrInvalidTrigger is returned when trigger parameters are inconsistent,
	// such as a pattern trigger with a zero bit count.
	ErrInvalidTrigger = errors.New("capture: invalid trigger configuration")
)
