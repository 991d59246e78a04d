package detect

import (
	"context"
	"errors"
	"testing"

	"go.bug.st/serial/enumerator"

	"github.com/signalforge/capture-core/internal/capture"
)

func TestSerialDetectorScoring(t *testing.T) {
	tests := []struct {
		name string
		port *enumerator.PortDetails
		want int
	}{
		{
			name: "exact hardware match",
			port: &enumerator.PortDetails{Name: "/dev/ttyACM0", IsUSB: true, VID: "2E8A", PID: "000A", Product: "Capture Unit"},
			want: 95,
		},
		{
			name: "exact match lowercase ids",
			port: &enumerator.PortDetails{Name: "/dev/ttyACM1", IsUSB: true, VID: "2e8a", PID: "0009"},
			want: scoreExactMatch,
		},
		{
			name: "ftdi bridge",
			port: &enumerator.PortDetails{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001"},
			want: scoreBridgeChip,
		},
		{
			name: "cp210x bridge",
			port: &enumerator.PortDetails{Name: "/dev/ttyUSB1", IsUSB: true, VID: "10C4", PID: "EA60"},
			want: scoreBridgeChip,
		},
		{
			name: "unrelated usb device",
			port: &enumerator.PortDetails{Name: "/dev/ttyUSB2", IsUSB: true, VID: "046D", PID: "C534"},
			want: scoreBarePort,
		},
		{
			name: "bare serial port",
			port: &enumerator.PortDetails{Name: "/dev/ttyS0"},
			want: scoreBarePort,
		},
	}

	d := NewSerialDetector(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, got := d.classify(tt.port); got != tt.want {
				t.Errorf("confidence = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSerialDetectorConfigOverridesScore(t *testing.T) {
	d := NewSerialDetector(map[string]int{"2e8a:000a": 70, "1234:5678": 90}, nil)

	if _, got := d.classify(&enumerator.PortDetails{IsUSB: true, VID: "2E8A", PID: "000A"}); got != 70 {
		t.Errorf("overridden score = %d, want 70", got)
	}
	if _, got := d.classify(&enumerator.PortDetails{IsUSB: true, VID: "1234", PID: "5678"}); got != 90 {
		t.Errorf("added score = %d, want 90", got)
	}
}

func TestSerialDetectorDetect(t *testing.T) {
	d := NewSerialDetector(nil, nil)
	d.list = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyACM0", IsUSB: true, VID: "2E8A", PID: "000A", Product: "Capture Unit"},
			{Name: "/dev/ttyS0"},
		}, nil
	}

	devices, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}

	first := devices[0]
	if first.ID != "serial:/dev/ttyACM0" {
		t.Errorf("ID = %q", first.ID)
	}
	if first.Transport != capture.TransportSerial || first.DriverHint != "lanet-serial" {
		t.Errorf("device = %+v", first)
	}
	if first.Confidence != 95 || devices[1].Confidence != scoreBarePort {
		t.Errorf("confidences = %d, %d", first.Confidence, devices[1].Confidence)
	}
}

func TestSerialDetectorEnumerationFailure(t *testing.T) {
	d := NewSerialDetector(nil, nil)
	d.list = func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("no permission")
	}

	if _, err := d.Detect(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
}
