package detect

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/signalforge/capture-core/internal/capture"
	"github.com/signalforge/capture-core/internal/drivers/lanet"
)

// scoreVendorUtility is the confidence for devices reported by the vendor
// scan utility, which speaks the proprietary discovery protocol directly.
const scoreVendorUtility = 95

// defaultScanTimeout bounds one run of the external utility.
const defaultScanTimeout = 10 * time.Second

// scanRunner executes the scan and returns its stdout; a seam for tests.
type scanRunner func(ctx context.Context) ([]byte, error)

// VendorDetector shells out to the vendor's scan utility and parses its
// device listing. Each output line is "name<TAB>address"; blank lines and
// lines starting with '#' are ignored.
type VendorDetector struct {
	command string
	timeout time.Duration
	run     scanRunner
	logger  Logger
}

// NewVendorDetector creates a detector around the scan utility at path.
// A zero timeout takes the default. logger may be nil.
func NewVendorDetector(path string, args []string, timeout time.Duration, logger Logger) *VendorDetector {
	if timeout <= 0 {
		timeout = defaultScanTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &VendorDetector{
		command: path,
		timeout: timeout,
		run: func(ctx context.Context) ([]byte, error) {
			return exec.CommandContext(ctx, path, args...).Output()
		},
		logger: logger,
	}
}

// ID implements Detector.
func (d *VendorDetector) ID() string { return "vendor" }

// Detect runs the utility and parses its listing. A missing or failing
// utility is an error; the manager treats it as this detector finding
// nothing.
func (d *VendorDetector) Detect(ctx context.Context) ([]capture.DetectedDevice, error) {
	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	output, err := d.run(runCtx)
	if err != nil {
		return nil, fmt.Errorf("detect: vendor scan %s: %w", d.command, err)
	}
	return d.parse(string(output)), nil
}

func (d *VendorDetector) parse(output string) []capture.DetectedDevice {
	var devices []capture.DetectedDevice
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, address, ok := strings.Cut(line, "\t")
		if !ok {
			d.logger.Warn("vendor scan line skipped", "line", line)
			continue
		}
		name = strings.TrimSpace(name)
		address = strings.TrimSpace(address)
		if name == "" || address == "" {
			d.logger.Warn("vendor scan line skipped", "line", line)
			continue
		}

		transport := lanet.TransportTypeFor(address)
		devices = append(devices, capture.DetectedDevice{
			ID:               capture.DeviceID(transport, address),
			Name:             name,
			Transport:        transport,
			ConnectionString: address,
			DriverHint:       "lanet-" + string(transport),
			Confidence:       scoreVendorUtility,
		})
	}
	return devices
}
