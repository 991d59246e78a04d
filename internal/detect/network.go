package detect

import (
	"context"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/signalforge/capture-core/internal/capture"
)

// Network probe defaults.
const (
	// scoreAnsweredProbe is the confidence for an endpoint that accepted
	// a TCP connection on a capture port.
	scoreAnsweredProbe = 80

	// defaultProbeTimeout bounds one connection attempt.
	defaultProbeTimeout = 500 * time.Millisecond

	// probeConcurrency caps simultaneous connection attempts.
	probeConcurrency = 16
)

// netDialFunc opens one probe connection; a seam for tests.
type netDialFunc func(ctx context.Context, address string) (net.Conn, error)

// NetworkDetector probes configured hosts and ports for devices listening
// on TCP.
type NetworkDetector struct {
	hosts   []string
	ports   []int
	timeout time.Duration
	dial    netDialFunc
	logger  Logger
}

// NewNetworkDetector creates a network detector probing every host on
// every port. A zero timeout takes the default. logger may be nil.
func NewNetworkDetector(hosts []string, ports []int, timeout time.Duration, logger Logger) *NetworkDetector {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &NetworkDetector{
		hosts:   hosts,
		ports:   ports,
		timeout: timeout,
		dial: func(ctx context.Context, address string) (net.Conn, error) {
			var dialer net.Dialer
			return dialer.DialContext(ctx, "tcp", address)
		},
		logger: logger,
	}
}

// ID implements Detector.
func (d *NetworkDetector) ID() string { return "network" }

// Detect connects to every host:port pair concurrently. An endpoint that
// accepts the connection is reported; refusals and timeouts are silent.
func (d *NetworkDetector) Detect(ctx context.Context) ([]capture.DetectedDevice, error) {
	var (
		mu      sync.Mutex
		devices []capture.DetectedDevice
		wg      sync.WaitGroup
	)
	sem := make(chan struct{}, probeConcurrency)

	for _, host := range d.hosts {
		for _, port := range d.ports {
			address := net.JoinHostPort(host, strconv.Itoa(port))

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				return devices, ctx.Err()
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				probeCtx, cancel := context.WithTimeout(ctx, d.timeout)
				defer cancel()

				conn, err := d.dial(probeCtx, address)
				if err != nil {
					return
				}
				conn.Close()

				mu.Lock()
				devices = append(devices, capture.DetectedDevice{
					ID:               capture.DeviceID(capture.TransportNetwork, address),
					Name:             "Network capture device " + address,
					Transport:        capture.TransportNetwork,
					ConnectionString: address,
					DriverHint:       "lanet-network",
					Confidence:       scoreAnsweredProbe,
				})
				mu.Unlock()
				d.logger.Debug("network probe answered", "address", address)
			}()
		}
	}

	wg.Wait()

	// Goroutine completion order is arbitrary; keep output stable.
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ConnectionString < devices[j].ConnectionString
	})
	return devices, ctx.Err()
}
