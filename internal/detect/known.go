package detect

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/signalforge/capture-core/internal/capture"
)

// scoreRemembered is the confidence for devices remembered from previous
// sessions. Low enough that any live probe of the same address wins.
const scoreRemembered = 40

// KnownDevice is a device remembered from a previous session.
type KnownDevice struct {
	ID               string
	Name             string
	Transport        capture.TransportType
	ConnectionString string
	DriverHint       string
	LastSeen         time.Time
}

// KnownDeviceRepository persists remembered devices.
// This abstraction allows for different implementations (SQLite, mock)
// and enables unit testing without database dependencies.
type KnownDeviceRepository interface {
	// Upsert records a device sighting, replacing any previous row with
	// the same ID.
	Upsert(ctx context.Context, device KnownDevice) error

	// List returns every remembered device, most recently seen first.
	List(ctx context.Context) ([]KnownDevice, error)

	// Delete forgets a device. Deleting an unknown ID is not an error.
	Delete(ctx context.Context, id string) error
}

// SQLiteKnownDeviceRepository implements KnownDeviceRepository using SQLite.
type SQLiteKnownDeviceRepository struct {
	db *sql.DB
}

// NewSQLiteKnownDeviceRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the
// known_devices table migrated.
func NewSQLiteKnownDeviceRepository(db *sql.DB) *SQLiteKnownDeviceRepository {
	return &SQLiteKnownDeviceRepository{db: db}
}

// Upsert records a device sighting.
func (r *SQLiteKnownDeviceRepository) Upsert(ctx context.Context, device KnownDevice) error {
	query := `
		INSERT INTO known_devices (id, name, transport, connection_string, driver_hint, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			transport = excluded.transport,
			connection_string = excluded.connection_string,
			driver_hint = excluded.driver_hint,
			last_seen = excluded.last_seen`

	_, err := r.db.ExecContext(ctx, query,
		device.ID,
		device.Name,
		string(device.Transport),
		device.ConnectionString,
		device.DriverHint,
		device.LastSeen.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting known device: %w", err)
	}
	return nil
}

// List returns every remembered device, most recently seen first.
func (r *SQLiteKnownDeviceRepository) List(ctx context.Context) ([]KnownDevice, error) {
	query := `
		SELECT id, name, transport, connection_string, driver_hint, last_seen
		FROM known_devices
		ORDER BY last_seen DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying known devices: %w", err)
	}
	defer rows.Close()

	var devices []KnownDevice
	for rows.Next() {
		var (
			device    KnownDevice
			transport string
			lastSeen  string
		)
		if err := rows.Scan(&device.ID, &device.Name, &transport,
			&device.ConnectionString, &device.DriverHint, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning known device: %w", err)
		}
		device.Transport = capture.TransportType(transport)
		ts, err := time.Parse(time.RFC3339Nano, lastSeen)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen: %w", err)
		}
		device.LastSeen = ts
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating known devices: %w", err)
	}
	return devices, nil
}

// Delete forgets a device.
func (r *SQLiteKnownDeviceRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM known_devices WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting known device: %w", err)
	}
	return nil
}

// KnownDeviceDetector re-offers devices remembered from previous sessions
// at a low confidence, so a device that is temporarily unplugged still
// shows up in scan results.
type KnownDeviceDetector struct {
	repo   KnownDeviceRepository
	logger Logger
}

// NewKnownDeviceDetector creates a detector over the repository. logger
// may be nil.
func NewKnownDeviceDetector(repo KnownDeviceRepository, logger Logger) *KnownDeviceDetector {
	if logger == nil {
		logger = noopLogger{}
	}
	return &KnownDeviceDetector{repo: repo, logger: logger}
}

// ID implements Detector.
func (d *KnownDeviceDetector) ID() string { return "known" }

// Detect lists remembered devices.
func (d *KnownDeviceDetector) Detect(ctx context.Context) ([]capture.DetectedDevice, error) {
	known, err := d.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect: list known devices: %w", err)
	}

	devices := make([]capture.DetectedDevice, 0, len(known))
	for _, k := range known {
		devices = append(devices, capture.DetectedDevice{
			ID:               k.ID,
			Name:             k.Name,
			Transport:        k.Transport,
			ConnectionString: k.ConnectionString,
			DriverHint:       k.DriverHint,
			Confidence:       scoreRemembered,
		})
	}
	return devices, nil
}
