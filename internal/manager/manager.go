package manager

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/signalforge/capture-core/internal/capture"
	"github.com/signalforge/capture-core/internal/detect"
	"github.com/signalforge/capture-core/internal/events"
)

// AutoConnect asks ConnectToDevice to scan and pick the best candidate.
const AutoConnect = "auto"

// defaultDetectTimeout bounds one detector's probe during a scan.
const defaultDetectTimeout = 5 * time.Second

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Manager.
type Options struct {
	// DetectTimeout bounds each detector probe. Zero takes the default.
	DetectTimeout time.Duration

	// KnownDevices, when set, remembers successfully connected devices so
	// later scans re-offer them.
	KnownDevices detect.KnownDeviceRepository

	// Logger receives manager diagnostics. Nil means silent.
	Logger Logger
}

// Manager coordinates detectors, the driver registry, and live
// connections.
type Manager struct {
	registry  *Registry
	detectors []detect.Detector
	bus       *events.Bus
	known     detect.KnownDeviceRepository
	logger    Logger
	timeout   time.Duration

	// mu guards cached, active, current, and disposed. Events are
	// published while holding it so subscribers observe commit order.
	mu       sync.Mutex
	cached   []capture.DetectedDevice
	active   map[string]Driver
	current  Driver
	disposed bool
}

// New creates a manager over a registry, detectors, and an event bus.
func New(registry *Registry, detectors []detect.Detector, bus *events.Bus, opts Options) *Manager {
	if opts.DetectTimeout <= 0 {
		opts.DetectTimeout = defaultDetectTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Manager{
		registry:  registry,
		detectors: detectors,
		bus:       bus,
		known:     opts.KnownDevices,
		logger:    opts.Logger,
		timeout:   opts.DetectTimeout,
		active:    make(map[string]Driver),
	}
}

// Registry exposes the driver registry for registration at startup.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// RegisterDriver adds or replaces a driver registration and publishes the
// change.
func (m *Manager) RegisterDriver(reg Registration) error {
	if err := m.registry.Register(reg); err != nil {
		return err
	}
	m.bus.Publish(events.Event{
		Kind:       events.KindDriverRegistered,
		DriverID:   reg.ID,
		DriverName: reg.Name,
	})
	m.logger.Info("driver registered", "id", reg.ID, "priority", reg.Priority)
	return nil
}

// UnregisterDriver removes a registration and reports whether it existed.
func (m *Manager) UnregisterDriver(id string) bool {
	if !m.registry.Unregister(id) {
		return false
	}
	m.bus.Publish(events.Event{Kind: events.KindDriverUnregistered, DriverID: id})
	m.logger.Info("driver unregistered", "id", id)
	return true
}

// DetectHardware runs every detector concurrently and merges the results.
//
// When useCache is true and a previous scan exists, that result is returned
// unchanged without probing; a cold cache falls through to a fresh scan.
// Each probe gets its own timeout and a panicking detector is contained
// and logged rather than taking the scan down. Candidates are deduplicated
// by connection string keeping the highest confidence, then sorted by
// confidence descending. The merged result is cached and published.
func (m *Manager) DetectHardware(ctx context.Context, useCache bool) ([]capture.DetectedDevice, error) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil, ErrDisposed
	}
	if useCache && m.cached != nil {
		cached := cloneDevices(m.cached)
		m.mu.Unlock()
		return cached, nil
	}
	m.mu.Unlock()

	type probeResult struct {
		id      string
		devices []capture.DetectedDevice
		err     error
	}

	results := make(chan probeResult, len(m.detectors))
	for _, d := range m.detectors {
		go func(d detect.Detector) {
			probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			defer func() {
				if r := recover(); r != nil {
					results <- probeResult{id: d.ID(), err: fmt.Errorf("detector panicked: %v", r)}
				}
			}()

			devices, err := d.Detect(probeCtx)
			results <- probeResult{id: d.ID(), devices: devices, err: err}
		}(d)
	}

	best := make(map[string]capture.DetectedDevice)
	for range m.detectors {
		res := <-results
		if res.err != nil {
			// One failing probe must not hide the others' findings.
			m.logger.Warn("detector failed", "detector", res.id, "error", res.err)
		}
		for _, dev := range res.devices {
			if existing, ok := best[dev.ConnectionString]; !ok || dev.Confidence > existing.Confidence {
				best[dev.ConnectionString] = dev
			}
		}
	}

	merged := make([]capture.DetectedDevice, 0, len(best))
	for _, dev := range best {
		merged = append(merged, dev)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Confidence != merged[j].Confidence {
			return merged[i].Confidence > merged[j].Confidence
		}
		return merged[i].ConnectionString < merged[j].ConnectionString
	})

	m.mu.Lock()
	m.cached = merged
	m.bus.Publish(events.Event{Kind: events.KindDevicesDetected, Devices: cloneDevices(merged)})
	m.mu.Unlock()

	m.logger.Info("hardware scan complete", "devices", len(merged))
	return cloneDevices(merged), ctx.Err()
}

// CachedDevices returns the result of the last scan without probing.
func (m *Manager) CachedDevices() []capture.DetectedDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneDevices(m.cached)
}

// MatchDriver finds the registration that should own a detected device.
func (m *Manager) MatchDriver(device capture.DetectedDevice) (Registration, error) {
	reg, ok := m.registry.Match(device)
	if !ok {
		return Registration{}, fmt.Errorf("%w: %s", ErrDriverNotFound, device.ConnectionString)
	}
	return reg, nil
}

// CreateDriver matches and instantiates a driver for a device without
// connecting it.
func (m *Manager) CreateDriver(device capture.DetectedDevice) (Driver, error) {
	reg, err := m.MatchDriver(device)
	if err != nil {
		return nil, err
	}

	driver, err := reg.Factory(device.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("creating driver %s for %s: %w", reg.ID, device.ConnectionString, err)
	}

	m.bus.Publish(events.Event{
		Kind:             events.KindDriverCreated,
		DriverID:         reg.ID,
		DriverName:       reg.Name,
		ConnectionString: device.ConnectionString,
	})
	return driver, nil
}

// ConnectToDevice creates and connects a driver for the device at the
// given connection string. Passing AutoConnect scans and picks the highest
// confidence candidate. The returned driver is tracked until disconnected.
func (m *Manager) ConnectToDevice(ctx context.Context, connectionString string) (Driver, error) {
	device, err := m.resolveDevice(ctx, connectionString)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil, ErrDisposed
	}
	if _, exists := m.active[device.ConnectionString]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyConnected, device.ConnectionString)
	}
	m.mu.Unlock()

	driver, err := m.CreateDriver(device)
	if err != nil {
		return nil, err
	}

	if err := driver.Connect(ctx); err != nil {
		driver.Dispose()
		return nil, fmt.Errorf("connecting to %s: %w", device.ConnectionString, err)
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		driver.Dispose()
		return nil, ErrDisposed
	}
	if _, exists := m.active[device.ConnectionString]; exists {
		// A concurrent connect to the same address won the race while we
		// were dialing. The map entry owns its driver exclusively, so the
		// loser is torn down rather than overwriting it.
		m.mu.Unlock()
		driver.Dispose()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyConnected, device.ConnectionString)
	}
	m.active[device.ConnectionString] = driver
	m.current = driver
	m.bus.Publish(events.Event{
		Kind:             events.KindDeviceConnected,
		ConnectionString: device.ConnectionString,
		DriverID:         device.DriverHint,
	})
	m.mu.Unlock()

	m.remember(ctx, device)
	m.logger.Info("device connected", "connection", device.ConnectionString)
	return driver, nil
}

// resolveDevice turns a connection string (or AutoConnect) into a detected
// device, scanning when necessary.
func (m *Manager) resolveDevice(ctx context.Context, connectionString string) (capture.DetectedDevice, error) {
	if connectionString == AutoConnect {
		devices, err := m.DetectHardware(ctx, false)
		if err != nil && len(devices) == 0 {
			return capture.DetectedDevice{}, err
		}
		if len(devices) == 0 {
			return capture.DetectedDevice{}, ErrNoDevices
		}
		return devices[0], nil
	}

	m.mu.Lock()
	for _, dev := range m.cached {
		if dev.ConnectionString == connectionString {
			m.mu.Unlock()
			return dev, nil
		}
	}
	m.mu.Unlock()

	// Unscanned address: let the registry match on transport alone.
	transport := capture.TransportSerial
	if _, _, err := net.SplitHostPort(connectionString); err == nil {
		transport = capture.TransportNetwork
	}
	return capture.DetectedDevice{
		ID:               capture.DeviceID(transport, connectionString),
		Name:             connectionString,
		Transport:        transport,
		ConnectionString: connectionString,
	}, nil
}

// remember persists a successful connection for future scans.
func (m *Manager) remember(ctx context.Context, device capture.DetectedDevice) {
	if m.known == nil {
		return
	}
	err := m.known.Upsert(ctx, detect.KnownDevice{
		ID:               device.ID,
		Name:             device.Name,
		Transport:        device.Transport,
		ConnectionString: device.ConnectionString,
		DriverHint:       device.DriverHint,
		LastSeen:         time.Now(),
	})
	if err != nil {
		m.logger.Warn("remembering device failed", "device", device.ID, "error", err)
	}
}

// Disconnect tears down the connection on a connection string.
func (m *Manager) Disconnect(connectionString string) error {
	m.mu.Lock()
	driver, ok := m.active[connectionString]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotConnected, connectionString)
	}
	delete(m.active, connectionString)
	if m.current == driver {
		m.current = nil
	}
	m.bus.Publish(events.Event{
		Kind:             events.KindDeviceDisconnected,
		ConnectionString: connectionString,
	})
	m.mu.Unlock()

	driver.Dispose()
	m.logger.Info("device disconnected", "connection", connectionString)
	return nil
}

// DisconnectCurrentDevice tears down the most recently connected device.
func (m *Manager) DisconnectCurrentDevice() error {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	if current == nil {
		return ErrNotConnected
	}
	return m.Disconnect(current.ConnectionString())
}

// CurrentDriver returns the most recently connected driver, or nil.
func (m *Manager) CurrentDriver() Driver {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IsDeviceConnected reports whether a live driver holds the given
// connection string.
func (m *Manager) IsDeviceConnected(connectionString string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[connectionString]
	return ok
}

// ActiveConnections lists the connection strings with live drivers.
func (m *Manager) ActiveConnections() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.active))
	for cs := range m.active {
		out = append(out, cs)
	}
	sort.Strings(out)
	return out
}

// CreateMultiDeviceDriver builds a synchronized multi-device driver over
// the devices at the given connection strings. The unit count is validated
// before any driver is constructed; 2 to 5 units are supported. Member
// drivers are created but not connected.
func (m *Manager) CreateMultiDeviceDriver(connectionStrings []string) (*MultiDriver, error) {
	if len(connectionStrings) < minMultiUnits || len(connectionStrings) > maxMultiUnits {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidDeviceCount, len(connectionStrings))
	}

	units := make([]Driver, 0, len(connectionStrings))
	for _, cs := range connectionStrings {
		device, err := m.resolveDevice(context.Background(), cs)
		if err != nil {
			disposeAll(units)
			return nil, err
		}
		driver, err := m.CreateDriver(device)
		if err != nil {
			disposeAll(units)
			return nil, err
		}
		units = append(units, driver)
	}

	multi, err := NewMultiDriver(units, m.logger)
	if err != nil {
		disposeAll(units)
		return nil, err
	}

	m.bus.Publish(events.Event{
		Kind:              events.KindMultiDriverCreated,
		ConnectionStrings: append([]string(nil), connectionStrings...),
	})
	m.logger.Info("multi-device driver created", "units", len(connectionStrings))
	return multi, nil
}

// Dispose disconnects every active driver and shuts the manager down.
// Safe to call more than once.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	drivers := make([]Driver, 0, len(m.active))
	for cs, driver := range m.active {
		drivers = append(drivers, driver)
		delete(m.active, cs)
		m.bus.Publish(events.Event{
			Kind:             events.KindDeviceDisconnected,
			ConnectionString: cs,
		})
	}
	m.current = nil
	m.cached = nil
	m.mu.Unlock()

	for _, driver := range drivers {
		driver.Dispose()
	}
	m.logger.Info("manager disposed", "connections_closed", len(drivers))
}

func disposeAll(drivers []Driver) {
	for _, d := range drivers {
		d.Dispose()
	}
}

func cloneDevices(devices []capture.DetectedDevice) []capture.DetectedDevice {
	out := make([]capture.DetectedDevice, len(devices))
	copy(out, devices)
	return out
}
