package detect

import (
	"context"

	"github.com/signalforge/capture-core/internal/capture"
)

// Detector is one hardware probe strategy.
type Detector interface {
	// ID names the detector for logs and diagnostics.
	ID() string

	// Detect probes for devices. Implementations honour ctx cancellation
	// and return whatever they found so far alongside any error.
	Detect(ctx context.Context) ([]capture.DetectedDevice, error)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
