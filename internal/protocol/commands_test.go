package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/signalforge/capture-core/internal/capture"
)

func TestEncodeCommand(t *testing.T) {
	frame := EncodeCommand(FramingNetwork, OpStartCapture, nil)
	want := []byte{0x01, 0x00, 0x00, 0x00, byte(OpStartCapture)}
	if !bytes.Equal(frame, want) {
		t.Errorf("frame = %x, want %x", frame, want)
	}
}

func TestEncodeCaptureConfig(t *testing.T) {
	session := &capture.Session{
		Frequency:          24_000_000,
		PreTriggerSamples:  500,
		PostTriggerSamples: 1500,
		TriggerType:        capture.TriggerEdge,
		TriggerChannel:     9,
		TriggerInverted:    true,
		LoopCount:          2,
		MeasureBursts:      true,
		Channels:           []capture.Channel{{Number: 0}, {Number: 9}, {Number: 15}},
	}

	frame, err := EncodeCaptureConfig(FramingNetwork, session)
	if err != nil {
		t.Fatalf("EncodeCaptureConfig: %v", err)
	}

	// Strip the length prefix and check the body field by field.
	body := frame[4:]
	if int(binary.LittleEndian.Uint32(frame)) != len(body) {
		t.Fatalf("declared length %d, body %d", binary.LittleEndian.Uint32(frame), len(body))
	}

	if body[0] != byte(OpCaptureConfig) {
		t.Errorf("opcode = %#x, want %#x", body[0], OpCaptureConfig)
	}
	if body[1] != byte(capture.TriggerEdge) || body[2] != 9 || body[3] != 1 {
		t.Errorf("trigger block = %v, want [1 9 1]", body[1:4])
	}
	if got := binary.LittleEndian.Uint32(body[7:]); got != 24_000_000 {
		t.Errorf("frequency = %d, want 24000000", got)
	}
	if got := binary.LittleEndian.Uint32(body[11:]); got != 500 {
		t.Errorf("pre samples = %d, want 500", got)
	}
	if got := binary.LittleEndian.Uint32(body[15:]); got != 1500 {
		t.Errorf("post samples = %d, want 1500", got)
	}
	if body[19] != 2 || body[20] != 1 {
		t.Errorf("loop/bursts = %v, want [2 1]", body[19:21])
	}
	// Highest channel is 15, so the session sits in the 16-channel tier.
	if body[21] != byte(capture.Mode16) {
		t.Errorf("mode = %d, want %d", body[21], capture.Mode16)
	}
	if body[22] != 3 || !bytes.Equal(body[23:], []byte{0, 9, 15}) {
		t.Errorf("channel list = %v, want count 3 [0 9 15]", body[22:])
	}
}

func TestEncodeCaptureConfigRejectsBadSession(t *testing.T) {
	session := &capture.Session{
		Frequency:          1000,
		PostTriggerSamples: 10,
		Channels:           []capture.Channel{{Number: 24}},
	}
	if _, err := EncodeCaptureConfig(FramingNetwork, session); !errors.Is(err, capture.ErrInvalidChannel) {
		t.Fatalf("error = %v, want ErrInvalidChannel", err)
	}
}

func TestEncodeNetworkConfig(t *testing.T) {
	frame, err := EncodeNetworkConfig(FramingSerial, "workshop", "hunter2", "192.168.1.50", 5000)
	if err != nil {
		t.Fatalf("EncodeNetworkConfig: %v", err)
	}

	// Magic + length prefix, then the fixed-slot body.
	body := frame[6:]
	if body[0] != byte(OpNetworkConfig) {
		t.Errorf("opcode = %#x, want %#x", body[0], OpNetworkConfig)
	}
	if got := string(bytes.TrimRight(body[1:33], "\x00")); got != "workshop" {
		t.Errorf("access point slot = %q, want workshop", got)
	}
	if got := string(bytes.TrimRight(body[33:97], "\x00")); got != "hunter2" {
		t.Errorf("password slot = %q, want hunter2", got)
	}
	if got := string(bytes.TrimRight(body[97:113], "\x00")); got != "192.168.1.50" {
		t.Errorf("ip slot = %q, want 192.168.1.50", got)
	}
	if got := binary.LittleEndian.Uint16(body[113:]); got != 5000 {
		t.Errorf("port = %d, want 5000", got)
	}
}

func TestEncodeNetworkConfigFieldTooLong(t *testing.T) {
	_, err := EncodeNetworkConfig(FramingSerial, strings.Repeat("x", 33), "", "", 0)
	if !errors.Is(err, ErrFieldTooLong) {
		t.Fatalf("error = %v, want ErrFieldTooLong", err)
	}
}

func TestDecodeAck(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    bool
		wantErr error
	}{
		{"accepted", []byte{AckAccepted}, true, nil},
		{"rejected", []byte{AckRejected}, false, nil},
		{"empty payload", nil, false, ErrShortFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAck(tt.payload)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("accepted = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		ident   string
		major   int
		minor   int
		wantErr bool
	}{
		{"CAPTURE_DEVICE_V1_3", 1, 3, false},
		{"CAPTURE_DEVICE_V2_0", 2, 0, false},
		{"LOGIC_UNIT_V10_25", 10, 25, false},
		{"CAPTURE_DEVICE", 0, 0, true},
		{"", 0, 0, true},
		{"V1_3_EXTRA", 0, 0, true},
	}

	for _, tt := range tests {
		major, minor, err := ParseVersion(tt.ident)
		if tt.wantErr {
			if !errors.Is(err, ErrBadVersion) {
				t.Errorf("ParseVersion(%q) error = %v, want ErrBadVersion", tt.ident, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseVersion(%q): %v", tt.ident, err)
			continue
		}
		if major != tt.major || minor != tt.minor {
			t.Errorf("ParseVersion(%q) = %d.%d, want %d.%d", tt.ident, major, minor, tt.major, tt.minor)
		}
	}
}
