package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalforge/capture-core/internal/capture"
)

// Kind identifies a lifecycle event.
type Kind string

// Lifecycle events published by the device manager.
const (
	// KindDevicesDetected fires after a hardware scan completes.
	KindDevicesDetected Kind = "devices_detected"

	// KindDriverRegistered fires when a driver registration is added or
	// replaced in the registry.
	KindDriverRegistered Kind = "driver_registered"

	// KindDriverUnregistered fires when a registration is removed.
	KindDriverUnregistered Kind = "driver_unregistered"

	// KindDriverCreated fires when a driver instance is built for a device.
	KindDriverCreated Kind = "driver_created"

	// KindMultiDriverCreated fires when a synchronized multi-device driver
	// is assembled.
	KindMultiDriverCreated Kind = "multi_driver_created"

	// KindDeviceConnected fires after a successful connect handshake.
	KindDeviceConnected Kind = "device_connected"

	// KindDeviceDisconnected fires when a connection is torn down.
	KindDeviceDisconnected Kind = "device_disconnected"

	// KindCaptureCompleted fires when a capture finishes, successfully or
	// not; Code carries the outcome.
	KindCaptureCompleted Kind = "capture_completed"
)

// Event is one lifecycle notification. Only the fields relevant to the
// kind are populated.
type Event struct {
	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`

	// Devices is the scan result for KindDevicesDetected.
	Devices []capture.DetectedDevice `json:"devices,omitempty"`

	// DriverID names the registry entry involved.
	DriverID string `json:"driver_id,omitempty"`

	// DriverName is the registration's human-readable name.
	DriverName string `json:"driver_name,omitempty"`

	// ConnectionString is the device address for connection events.
	ConnectionString string `json:"connection_string,omitempty"`

	// ConnectionStrings lists the member addresses of a multi-device driver.
	ConnectionStrings []string `json:"connection_strings,omitempty"`

	// SessionID identifies the capture for KindCaptureCompleted.
	SessionID string `json:"session_id,omitempty"`

	// Code is the capture outcome for KindCaptureCompleted.
	Code capture.ErrorCode `json:"code,omitempty"`

	// SampleCount is the number of decoded samples for KindCaptureCompleted.
	SampleCount int `json:"sample_count,omitempty"`
}

// subscriberBuffer is the per-subscriber channel depth. A consumer this far
// behind is not keeping up; further events are dropped for it.
const subscriberBuffer = 64

// Bus fans events out to subscribers without blocking publishers.
//
// Thread Safety: all methods are safe for concurrent use.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a consumer. The returned cancel function removes the
// subscription and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber. Publishing never blocks:
// a full subscriber channel drops the event for that subscriber only.
// Events published while holding no external ordering guarantee arrive at
// each subscriber in the order Publish was called.
func (b *Bus) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.published.Add(1)
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Close shuts the bus down and closes every subscriber channel. Publish
// becomes a no-op. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Stats returns publish and drop counters.
func (b *Bus) Stats() (published, dropped uint64) {
	return b.published.Load(), b.dropped.Load()
}
