package detect

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/signalforge/capture-core/internal/capture"
)

// acceptingConn is a net.Conn stub; only Close is exercised by the probe.
type acceptingConn struct{ net.Conn }

func (acceptingConn) Close() error { return nil }

func TestNetworkDetectorReportsAnsweringEndpoints(t *testing.T) {
	d := NewNetworkDetector([]string{"10.0.0.5", "10.0.0.6"}, []int{5000, 5001}, time.Second, nil)
	d.dial = func(_ context.Context, address string) (net.Conn, error) {
		if address == "10.0.0.5:5000" || address == "10.0.0.6:5001" {
			return acceptingConn{}, nil
		}
		return nil, errors.New("connection refused")
	}

	devices, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}

	// Sorted by connection string.
	if devices[0].ConnectionString != "10.0.0.5:5000" || devices[1].ConnectionString != "10.0.0.6:5001" {
		t.Errorf("addresses = %q, %q", devices[0].ConnectionString, devices[1].ConnectionString)
	}
	for _, dev := range devices {
		if dev.Confidence != scoreAnsweredProbe {
			t.Errorf("%s: confidence = %d, want %d", dev.ConnectionString, dev.Confidence, scoreAnsweredProbe)
		}
		if dev.Transport != capture.TransportNetwork || dev.DriverHint != "lanet-network" {
			t.Errorf("device = %+v", dev)
		}
	}
}

func TestNetworkDetectorNothingAnswers(t *testing.T) {
	d := NewNetworkDetector([]string{"10.0.0.5"}, []int{5000}, time.Second, nil)
	d.dial = func(context.Context, string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}

	devices, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("got %d devices, want 0", len(devices))
	}
}

func TestNetworkDetectorHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewNetworkDetector([]string{"10.0.0.5"}, []int{5000, 5001, 5002}, time.Second, nil)
	d.dial = func(ctx context.Context, _ string) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if _, err := d.Detect(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Detect error = %v, want context.Canceled", err)
	}
}
