package detect

import (
	"context"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"

	"github.com/signalforge/capture-core/internal/capture"
)

// Default serial confidence scores. Exact hardware IDs are near-certain;
// generic bridge chips could front anything; a bare port is a long shot.
const (
	scoreExactMatch = 92
	scoreBridgeChip = 60
	scoreBarePort   = 30
)

// defaultVendorScores maps known "VID:PID" pairs to confidence. The
// reference hardware enumerates as a Raspberry Pi RP2040 composite device.
var defaultVendorScores = map[string]int{
	"2E8A:000A": 95,
	"2E8A:0009": scoreExactMatch,
}

// bridgeVendors are USB-serial bridge chip vendor IDs: FTDI, Silicon Labs
// (CP210x), and WCH (CH340).
var bridgeVendors = map[string]bool{
	"0403": true,
	"10C4": true,
	"1A86": true,
}

// portLister enumerates serial ports; a seam for tests.
type portLister func() ([]*enumerator.PortDetails, error)

// SerialDetector finds devices on local serial ports by USB vendor and
// product IDs.
type SerialDetector struct {
	scores map[string]int
	list   portLister
	logger Logger
}

// NewSerialDetector creates a serial-port detector. vendorScores overrides
// or extends the built-in "VID:PID" confidence table; nil keeps the
// defaults. logger may be nil.
func NewSerialDetector(vendorScores map[string]int, logger Logger) *SerialDetector {
	scores := make(map[string]int, len(defaultVendorScores)+len(vendorScores))
	for k, v := range defaultVendorScores {
		scores[strings.ToUpper(k)] = v
	}
	for k, v := range vendorScores {
		scores[strings.ToUpper(k)] = v
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &SerialDetector{
		scores: scores,
		list:   enumerator.GetDetailedPortsList,
		logger: logger,
	}
}

// ID implements Detector.
func (d *SerialDetector) ID() string { return "serial" }

// Detect enumerates serial ports and scores each one.
func (d *SerialDetector) Detect(ctx context.Context) ([]capture.DetectedDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := d.list()
	if err != nil {
		return nil, fmt.Errorf("detect: enumerate serial ports: %w", err)
	}

	var devices []capture.DetectedDevice
	for _, port := range ports {
		name, confidence := d.classify(port)
		devices = append(devices, capture.DetectedDevice{
			ID:               capture.DeviceID(capture.TransportSerial, port.Name),
			Name:             name,
			Transport:        capture.TransportSerial,
			ConnectionString: port.Name,
			DriverHint:       "lanet-serial",
			Confidence:       confidence,
		})
		d.logger.Debug("serial port scored",
			"port", port.Name,
			"confidence", confidence,
		)
	}
	return devices, nil
}

// classify scores one enumerated port and picks a display name.
func (d *SerialDetector) classify(port *enumerator.PortDetails) (string, int) {
	if !port.IsUSB {
		return fmt.Sprintf("Serial port %s", port.Name), scoreBarePort
	}

	key := strings.ToUpper(port.VID + ":" + port.PID)
	if score, ok := d.scores[key]; ok {
		name := port.Product
		if name == "" {
			name = fmt.Sprintf("Capture device (%s)", key)
		}
		return name, score
	}

	if bridgeVendors[strings.ToUpper(port.VID)] {
		name := port.Product
		if name == "" {
			name = fmt.Sprintf("USB-serial bridge %s", port.Name)
		}
		return name, scoreBridgeChip
	}

	name := port.Product
	if name == "" {
		name = fmt.Sprintf("USB serial %s", port.Name)
	}
	return name, scoreBarePort
}
