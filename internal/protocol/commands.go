package protocol

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"

	"github.com/signalforge/capture-core/internal/capture"
)

// Opcode identifies a command packet.
type Opcode byte

// Command opcodes understood by the reference hardware.
const (
	OpVersion         Opcode = 0x01
	OpCaptureConfig   Opcode = 0x02
	OpStartCapture    Opcode = 0x03
	OpStopCapture     Opcode = 0x04
	OpEnterBootloader Opcode = 0x05
	OpVoltageStatus   Opcode = 0x06
	OpNetworkConfig   Opcode = 0x07
)

// Configuration acknowledgement bytes. The device answers a
// capture-configuration command with a single-byte frame.
const (
	// AckAccepted means the device accepted the configuration.
	AckAccepted byte = 0x01

	// AckRejected means the device actively rejected the request.
	AckRejected byte = 0x00
)

// Fixed field widths for the network-configuration command.
const (
	apNameWidth   = 32
	passwordWidth = 64
	ipWidth       = 16
)

// EncodeCommand frames a bare command: opcode plus optional raw payload.
func EncodeCommand(framing Framing, op Opcode, payload []byte) []byte {
	body := make([]byte, 1+len(payload))
	body[0] = byte(op)
	copy(body[1:], payload)
	return EncodeFrame(framing, body)
}

// EncodeCaptureConfig serializes the capture-configuration command for a
// session. Layout after the opcode, all multi-byte fields little-endian:
//
//	trigger_type(1) trigger_channel(1) inverted(1) pattern(2) bit_count(1)
//	frequency(4) pre_samples(4) post_samples(4) loop_count(1) bursts(1)
//	mode(1) channel_count(1) channels(channel_count)
func EncodeCaptureConfig(framing Framing, s *capture.Session) ([]byte, error) {
	mode, err := s.Mode()
	if err != nil {
		return nil, err
	}

	body := make([]byte, 0, 23+len(s.Channels))
	body = append(body, byte(OpCaptureConfig))
	body = append(body, byte(s.TriggerType), s.TriggerChannel, boolByte(s.TriggerInverted))
	body = binary.LittleEndian.AppendUint16(body, s.TriggerPattern)
	body = append(body, s.TriggerBitCount)
	body = binary.LittleEndian.AppendUint32(body, s.Frequency)
	body = binary.LittleEndian.AppendUint32(body, s.PreTriggerSamples)
	body = binary.LittleEndian.AppendUint32(body, s.PostTriggerSamples)
	body = append(body, s.LoopCount, boolByte(s.MeasureBursts), byte(mode), byte(len(s.Channels)))
	for _, ch := range s.Channels {
		body = append(body, ch.Number)
	}

	return EncodeFrame(framing, body), nil
}

// EncodeNetworkConfig serializes the network-configuration push: access
// point name, password, and static address the device should adopt. String
// fields occupy fixed zero-padded slots so the firmware parser stays trivial.
func EncodeNetworkConfig(framing Framing, accessPoint, password, ipAddress string, port uint16) ([]byte, error) {
	if len(accessPoint) > apNameWidth {
		return nil, fmt.Errorf("%w: access point name %d > %d", ErrFieldTooLong, len(accessPoint), apNameWidth)
	}
	if len(password) > passwordWidth {
		return nil, fmt.Errorf("%w: password %d > %d", ErrFieldTooLong, len(password), passwordWidth)
	}
	if len(ipAddress) > ipWidth {
		return nil, fmt.Errorf("%w: ip address %d > %d", ErrFieldTooLong, len(ipAddress), ipWidth)
	}

	body := make([]byte, 1+apNameWidth+passwordWidth+ipWidth+2)
	body[0] = byte(OpNetworkConfig)
	copy(body[1:], accessPoint)
	copy(body[1+apNameWidth:], password)
	copy(body[1+apNameWidth+passwordWidth:], ipAddress)
	binary.LittleEndian.PutUint16(body[1+apNameWidth+passwordWidth+ipWidth:], port)

	return EncodeFrame(framing, body), nil
}

// DecodeAck interprets the device's one-byte configuration
// acknowledgement. An empty payload returns ErrShortFrame.
func DecodeAck(payload []byte) (bool, error) {
	if len(payload) < 1 {
		return false, fmt.Errorf("%w: empty acknowledgement", ErrShortFrame)
	}
	return payload[0] == AckAccepted, nil
}

// versionPattern matches device identification strings such as
// "CAPTURE_DEVICE_V1_3".
var versionPattern = regexp.MustCompile(`_V(\d+)_(\d+)$`)

// ParseVersion extracts the major and minor firmware version from a device
// identification string.
func ParseVersion(ident string) (major, minor int, err error) {
	m := versionPattern.FindStringSubmatch(ident)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadVersion, ident)
	}
	major, _ = strconv.Atoi(m[1])
	minor, _ = strconv.Atoi(m[2])
	return major, minor, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
