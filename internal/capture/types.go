package capture

import (
	"fmt"

	"github.com/google/uuid"
)

// MaxChannel is the highest addressable channel number. The reference
// hardware exposes 24 digital inputs numbered 0-23.
const MaxChannel = 23

// Mode is the capture mode: the channel-count tier that determines the
// byte width of each sample word on the wire.
type Mode uint8

// Capture modes, selected implicitly by the highest channel number in a
// session (see Session.Mode).
const (
	// Mode8 covers channels 0-7; one byte per sample.
	Mode8 Mode = 0

	// Mode16 covers channels 0-15; two bytes per sample.
	Mode16 Mode = 1

	// Mode24 covers channels 0-23; three bytes per sample.
	Mode24 Mode = 2
)

// SampleWidth returns the number of bytes one sample word occupies on the
// wire in this mode.
func (m Mode) SampleWidth() int {
	return int(m) + 1
}

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case Mode8:
		return "8-channel"
	case Mode16:
		return "16-channel"
	case Mode24:
		return "24-channel"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// TriggerType selects the hardware trigger engine for a capture.
type TriggerType uint8

// Trigger types supported by the reference hardware.
const (
	// TriggerNone starts the capture immediately without waiting for a
	// trigger condition. Used for free-running captures and for the
	// non-master units of a synchronized multi-device capture.
	TriggerNone TriggerType = 0

	// TriggerEdge fires on a rising (or, when inverted, falling) edge of
	// a single channel.
	TriggerEdge TriggerType = 1

	// TriggerComplex fires when a bit pattern appears across consecutive
	// channels starting at the trigger channel.
	TriggerComplex TriggerType = 2

	// TriggerFast is the pattern trigger variant limited to 5 bits but
	// sampled at full speed.
	TriggerFast TriggerType = 3

	// TriggerBlast arms the highest-speed capture path; trigger position
	// is fixed by the hardware.
	TriggerBlast TriggerType = 4
)

// maxFastTriggerBits is the widest pattern the fast trigger engine accepts.
const maxFastTriggerBits = 5

// maxComplexTriggerBits is the widest pattern the complex trigger accepts.
const maxComplexTriggerBits = 16

// Channel describes one digital input included in a capture.
type Channel struct {
	// Number is the hardware channel index, 0-23.
	Number uint8 `json:"number"`

	// Name is an optional caller-assigned label (e.g., "SDA").
	Name string `json:"name,omitempty"`
}

// Session describes a single capture request.
//
// A Session is a plain value: drivers clone it on StartCapture so the
// caller may reuse or mutate it afterwards.
type Session struct {
	// ID identifies this capture for history rows and telemetry.
	// Assigned via GenerateID when empty.
	ID string `json:"id"`

	// Frequency is the sample rate in Hz.
	Frequency uint32 `json:"frequency"`

	// PreTriggerSamples is the number of samples kept before the trigger.
	PreTriggerSamples uint32 `json:"pre_trigger_samples"`

	// PostTriggerSamples is the number of samples captured after the trigger.
	PostTriggerSamples uint32 `json:"post_trigger_samples"`

	TriggerType     TriggerType `json:"trigger_type"`
	TriggerChannel  uint8       `json:"trigger_channel"`
	TriggerInverted bool        `json:"trigger_inverted"`

	// TriggerPattern is the bit pattern for Complex/Fast triggers,
	// LSB first starting at TriggerChannel.
	TriggerPattern  uint16 `json:"trigger_pattern"`
	TriggerBitCount uint8  `json:"trigger_bit_count"`

	// LoopCount requests repeated post-trigger bursts. Zero means a
	// single burst.
	LoopCount uint8 `json:"loop_count"`

	// MeasureBursts asks the hardware to append burst-boundary timestamps
	// to the capture payload.
	MeasureBursts bool `json:"measure_bursts"`

	// Channels is the ordered set of channels to capture. Channel numbers
	// must be unique and below 24.
	Channels []Channel `json:"channels"`
}

// GenerateID returns a new unique capture identifier.
func GenerateID() string {
	return uuid.NewString()
}

// TotalSamples returns the number of sample words one completed capture
// is expected to deliver.
func (s *Session) TotalSamples() int {
	return int(s.PreTriggerSamples) + int(s.PostTriggerSamples)
}

// Mode classifies the session into a capture mode from its channel set.
// The highest channel number present decides the tier. Returns
// ErrNoChannels for an empty set and ErrInvalidChannel when any channel
// number is 24 or above.
func (s *Session) Mode() (Mode, error) {
	if len(s.Channels) == 0 {
		return 0, ErrNoChannels
	}

	max := uint8(0)
	for _, ch := range s.Channels {
		if ch.Number > MaxChannel {
			return 0, fmt.Errorf("%w: channel %d (maximum %d)", ErrInvalidChannel, ch.Number, MaxChannel)
		}
		if ch.Number > max {
			max = ch.Number
		}
	}

	switch {
	case max <= 7:
		return Mode8, nil
	case max <= 15:
		return Mode16, nil
	default:
		return Mode24, nil
	}
}

// Validate checks the session for inconsistencies a driver would reject.
// It returns the first problem found.
func (s *Session) Validate() error {
	if _, err := s.Mode(); err != nil {
		return err
	}

	seen := make(map[uint8]bool, len(s.Channels))
	for _, ch := range s.Channels {
		if seen[ch.Number] {
			return fmt.Errorf("%w: channel %d listed twice", ErrInvalidChannel, ch.Number)
		}
		seen[ch.Number] = true
	}

	if s.TotalSamples() == 0 {
		return ErrNoSamples
	}
	if s.Frequency == 0 {
		return ErrInvalidFrequency
	}

	switch s.TriggerType {
	case TriggerNone, TriggerBlast:
		// No pattern fields to cross-check.
	case TriggerEdge:
		if int(s.TriggerChannel) > MaxChannel {
			return fmt.Errorf("%w: trigger channel %d", ErrInvalidTrigger, s.TriggerChannel)
		}
	case TriggerComplex, TriggerFast:
		limit := maxComplexTriggerBits
		if s.TriggerType == TriggerFast {
			limit = maxFastTriggerBits
		}
		if s.TriggerBitCount == 0 || int(s.TriggerBitCount) > limit {
			return fmt.Errorf("%w: bit count %d (limit %d)", ErrInvalidTrigger, s.TriggerBitCount, limit)
		}
		if int(s.TriggerChannel)+int(s.TriggerBitCount) > MaxChannel+1 {
			return fmt.Errorf("%w: pattern spills past channel %d", ErrInvalidTrigger, MaxChannel)
		}
	default:
		return fmt.Errorf("%w: unknown trigger type %d", ErrInvalidTrigger, s.TriggerType)
	}

	return nil
}

// Clone returns an independent deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Channels = make([]Channel, len(s.Channels))
	copy(out.Channels, s.Channels)
	return &out
}

// Result holds the decoded output of one completed capture.
//
// Ownership passes to the caller when the completion handler fires; the
// driver never touches a Result again after delivering it.
type Result struct {
	// Samples holds one packed sample word per captured tick. The word
	// width on the wire is implied by the capture mode; samples are
	// widened to uint32 for channel-addressable access.
	Samples []uint32 `json:"samples"`

	// Timestamps holds burst-boundary markers, present only when the
	// session requested MeasureBursts.
	Timestamps []uint64 `json:"timestamps,omitempty"`
}

// Clone returns an independent deep copy of the result.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := &Result{
		Samples:    make([]uint32, len(r.Samples)),
		Timestamps: make([]uint64, len(r.Timestamps)),
	}
	copy(out.Samples, r.Samples)
	copy(out.Timestamps, r.Timestamps)
	return out
}

// ChannelSamples extracts the bit stream of a single channel from the
// packed sample words: one 0/1 value per tick.
func (r *Result) ChannelSamples(channel uint8) []byte {
	out := make([]byte, len(r.Samples))
	for i, word := range r.Samples {
		out[i] = byte((word >> channel) & 1)
	}
	return out
}

// TransportType identifies the physical link family a device is reached over.
type TransportType string

// Known transport types.
const (
	TransportSerial  TransportType = "serial"
	TransportNetwork TransportType = "network"
	TransportUSB     TransportType = "usb"
	TransportVendor  TransportType = "vendor"
)

// DetectedDevice is a candidate device produced by one detector probe.
// Values are never mutated after creation; a re-detection replaces them.
type DetectedDevice struct {
	// ID is stable for a given connection string across probes.
	ID string `json:"id"`

	// Name is a human-readable device label.
	Name string `json:"name"`

	// Transport is the link family the device was found on.
	Transport TransportType `json:"transport"`

	// ConnectionString is the transport address: a serial device path or
	// "host:port" for network devices.
	ConnectionString string `json:"connection_string"`

	// DriverHint optionally names the driver registration the detector
	// believes should own this device.
	DriverHint string `json:"driver_hint,omitempty"`

	// Confidence is the detector's 1-100 score that this address hosts a
	// compatible device.
	Confidence int `json:"confidence"`
}

// DeviceID derives the stable device identifier for a connection string.
func DeviceID(transport TransportType, connectionString string) string {
	return fmt.Sprintf("%s:%s", transport, connectionString)
}

// DeviceStatus is the best-effort status snapshot a driver reports.
type DeviceStatus struct {
	Connected bool `json:"connected"`
	Capturing bool `json:"capturing"`

	// BatteryVoltage is the device-reported supply voltage, or one of the
	// sentinel strings "N/A", "TIMEOUT", "ERROR" when it could not be read.
	BatteryVoltage string `json:"battery_voltage"`
}

// ErrorCode is the outcome of a StartCapture call. Drivers return it as a
// value rather than raising, so callers branch on outcome directly.
type ErrorCode int

// StartCapture outcomes.
const (
	// CaptureNone means the capture was accepted (or completed) cleanly.
	CaptureNone ErrorCode = iota

	// CaptureBusy means a capture was already in flight on this driver.
	CaptureBusy

	// CaptureBadParams means the session failed validation.
	CaptureBadParams

	// CaptureHardwareError means the device actively rejected the request.
	CaptureHardwareError

	// CaptureUnexpectedError means a local fault (serialization or
	// transport write failure) aborted the capture.
	CaptureUnexpectedError

	// CaptureTimeout means no completion signal arrived within budget.
	CaptureTimeout
)

// String returns the outcome name.
func (c ErrorCode) String() string {
	switch c {
	case CaptureNone:
		return "none"
	case CaptureBusy:
		return "busy"
	case CaptureBadParams:
		return "bad_params"
	case CaptureHardwareError:
		return "hardware_error"
	case CaptureUnexpectedError:
		return "unexpected_error"
	case CaptureTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("error_code(%d)", int(c))
	}
}

// CompletionHandler fires exactly once when a capture finishes. On success
// the result is non-nil and the code is CaptureNone; on failure the result
// is nil and the code names the failure.
type CompletionHandler func(result *Result, code ErrorCode)
