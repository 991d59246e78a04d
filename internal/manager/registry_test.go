package manager

import (
	"errors"
	"testing"

	"github.com/signalforge/capture-core/internal/capture"
)

func nopFactory(connectionString string) (Driver, error) {
	return &fakeDriver{connectionString: connectionString}, nil
}

func TestRegistryRegisterValidation(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(Registration{Factory: nopFactory}); !errors.Is(err, ErrInvalidRegistration) {
		t.Errorf("empty ID error = %v, want ErrInvalidRegistration", err)
	}
	if err := r.Register(Registration{ID: "x"}); !errors.Is(err, ErrInvalidRegistration) {
		t.Errorf("nil factory error = %v, want ErrInvalidRegistration", err)
	}
	if err := r.Register(Registration{ID: "x", Factory: nopFactory}); err != nil {
		t.Errorf("valid registration: %v", err)
	}
}

func TestRegistryListOrdersByPriority(t *testing.T) {
	r := NewRegistry()
	regs := []Registration{
		{ID: "low", Priority: 10, Factory: nopFactory},
		{ID: "high", Priority: 100, Factory: nopFactory},
		{ID: "mid-a", Priority: 50, Factory: nopFactory},
		{ID: "mid-b", Priority: 50, Factory: nopFactory},
	}
	for _, reg := range regs {
		if err := r.Register(reg); err != nil {
			t.Fatal(err)
		}
	}

	got := r.List()
	want := []string{"high", "mid-a", "mid-b", "low"}
	if len(got) != len(want) {
		t.Fatalf("got %d registrations, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d = %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestRegistryUpsertKeepsPosition(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Registration{ID: "a", Priority: 50, Factory: nopFactory})
	_ = r.Register(Registration{ID: "b", Priority: 50, Factory: nopFactory})

	// Re-register "a" with a new name; ties still list a before b.
	_ = r.Register(Registration{ID: "a", Name: "renamed", Priority: 50, Factory: nopFactory})

	got := r.List()
	if got[0].ID != "a" || got[0].Name != "renamed" || got[1].ID != "b" {
		t.Errorf("order after upsert = %q, %q", got[0].ID, got[1].ID)
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Registration{ID: "a", Factory: nopFactory})

	if !r.Unregister("a") {
		t.Error("Unregister(a) = false, want true")
	}
	if r.Unregister("a") {
		t.Error("second Unregister(a) = true, want false")
	}
	if r.Unregister("never-registered") {
		t.Error("Unregister of unknown ID = true, want false")
	}
}

func TestRegistryMatch(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Registration{ID: "lanet-serial", Priority: 100, Tags: []string{"serial", "usb", "lanet"}, Factory: nopFactory})
	_ = r.Register(Registration{ID: "lanet-network", Priority: 60, Tags: []string{"network", "lanet"}, Factory: nopFactory})

	tests := []struct {
		name   string
		device capture.DetectedDevice
		wantID string
		wantOK bool
	}{
		{
			name:   "hint wins",
			device: capture.DetectedDevice{DriverHint: "lanet-network", Transport: capture.TransportSerial},
			wantID: "lanet-network",
			wantOK: true,
		},
		{
			name:   "unknown hint falls back to transport",
			device: capture.DetectedDevice{DriverHint: "gone", Transport: capture.TransportSerial},
			wantID: "lanet-serial",
			wantOK: true,
		},
		{
			name:   "network transport",
			device: capture.DetectedDevice{Transport: capture.TransportNetwork},
			wantID: "lanet-network",
			wantOK: true,
		},
		{
			name:   "no match",
			device: capture.DetectedDevice{Transport: capture.TransportVendor},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, ok := r.Match(tt.device)
			if ok != tt.wantOK {
				t.Fatalf("Match ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && reg.ID != tt.wantID {
				t.Errorf("Match = %q, want %q", reg.ID, tt.wantID)
			}
		})
	}
}
