package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/signalforge/capture-core/internal/capture"
)

// Driver is the device-facing surface the manager works against. The lanet
// driver satisfies it; MultiDriver deliberately does not, since its
// completion handler carries per-unit results.
type Driver interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Dispose()

	ConnectionString() string
	ChannelCount() int

	StartCapture(session *capture.Session, onComplete capture.CompletionHandler) capture.ErrorCode
	StopCapture() error

	GetStatus() capture.DeviceStatus
	GetVoltageStatus() string
}

// Factory builds a driver instance for a connection string.
type Factory func(connectionString string) (Driver, error)

// Registration describes one driver the registry can instantiate.
type Registration struct {
	// ID is the unique registration key, e.g. "lanet-serial".
	ID string

	// Name is the human-readable driver name.
	Name string

	// Priority orders candidates when several registrations serve the
	// same transport; higher wins.
	Priority int

	// Tags lists the transport families and capabilities this driver
	// serves, e.g. "serial", "usb", "lanet".
	Tags []string

	// Factory builds a driver for a device's connection string.
	Factory Factory
}

// hasTag reports whether the registration carries a tag.
func (r Registration) hasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Registry holds driver registrations keyed by ID.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	regs    map[string]Registration
	seq     map[string]int
	nextSeq int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		regs: make(map[string]Registration),
		seq:  make(map[string]int),
	}
}

// Register adds a registration, replacing any existing one with the same
// ID. A replacement keeps the original's position for stable ordering.
func (r *Registry) Register(reg Registration) error {
	if reg.ID == "" {
		return fmt.Errorf("%w: empty ID", ErrInvalidRegistration)
	}
	if reg.Factory == nil {
		return fmt.Errorf("%w: %s has no factory", ErrInvalidRegistration, reg.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.regs[reg.ID]; !exists {
		r.seq[reg.ID] = r.nextSeq
		r.nextSeq++
	}
	r.regs[reg.ID] = reg
	return nil
}

// Unregister removes a registration and reports whether it existed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.regs[id]; !exists {
		return false
	}
	delete(r.regs, id)
	delete(r.seq, id)
	return true
}

// Get returns a registration by ID.
func (r *Registry) Get(id string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[id]
	return reg, ok
}

// List returns all registrations ordered by priority, highest first.
// Equal priorities keep registration order.
func (r *Registry) List() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registration, 0, len(r.regs))
	for _, reg := range r.regs {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return r.seq[out[i].ID] < r.seq[out[j].ID]
	})
	return out
}

// Match finds the registration that should own a detected device. A
// DriverHint naming a registered ID wins outright; otherwise the highest
// priority registration tagged with the device's transport is chosen.
func (r *Registry) Match(device capture.DetectedDevice) (Registration, bool) {
	if device.DriverHint != "" {
		if reg, ok := r.Get(device.DriverHint); ok {
			return reg, true
		}
	}

	for _, reg := range r.List() {
		if reg.hasTag(string(device.Transport)) {
			return reg, true
		}
	}
	return Registration{}, false
}
