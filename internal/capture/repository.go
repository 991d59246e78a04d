package capture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// HistoryRecord is one completed (or failed) capture persisted for later
// inspection. Sample data itself is not stored, only the shape and outcome.
type HistoryRecord struct {
	ID               string
	ConnectionString string
	Mode             Mode
	PreSamples       uint32
	PostSamples      uint32
	Frequency        uint32
	SampleCount      int
	TimestampCount   int
	ErrorCode        ErrorCode
	CompletedAt      time.Time
}

// HistoryRepository persists capture history rows.
// This abstraction allows for different implementations (SQLite, mock)
// and enables unit testing without database dependencies.
type HistoryRepository interface {
	// Record inserts a history row for a finished capture.
	Record(ctx context.Context, rec *HistoryRecord) error

	// List retrieves the most recent captures, newest first.
	List(ctx context.Context, limit int) ([]HistoryRecord, error)

	// GetByID retrieves a single capture by its identifier.
	// Returns ErrCaptureNotFound if no row exists.
	GetByID(ctx context.Context, id string) (*HistoryRecord, error)
}

// ErrCaptureNotFound is returned when a capture ID has no history row.
var ErrCaptureNotFound = errors.New("capture: history record not found")

// SQLiteHistoryRepository implements HistoryRepository using SQLite.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a new SQLite-backed history repository.
// The db parameter should be an open SQLite connection with the captures
// table migrated.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// Record inserts a history row for a finished capture.
func (r *SQLiteHistoryRepository) Record(ctx context.Context, rec *HistoryRecord) error {
	query := `
		INSERT INTO captures (id, connection_string, mode, pre_samples, post_samples,
			frequency, sample_count, timestamp_count, error_code, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.ConnectionString,
		int(rec.Mode),
		rec.PreSamples,
		rec.PostSamples,
		rec.Frequency,
		rec.SampleCount,
		rec.TimestampCount,
		int(rec.ErrorCode),
		rec.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting capture record: %w", err)
	}
	return nil
}

// List retrieves the most recent captures, newest first.
func (r *SQLiteHistoryRepository) List(ctx context.Context, limit int) ([]HistoryRecord, error) {
	query := `
		SELECT id, connection_string, mode, pre_samples, post_samples,
			frequency, sample_count, timestamp_count, error_code, completed_at
		FROM captures
		ORDER BY completed_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying captures: %w", err)
	}
	defer rows.Close()

	var records []HistoryRecord
	for rows.Next() {
		rec, err := scanHistoryRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating captures: %w", err)
	}
	return records, nil
}

// GetByID retrieves a single capture by its identifier.
func (r *SQLiteHistoryRepository) GetByID(ctx context.Context, id string) (*HistoryRecord, error) {
	query := `
		SELECT id, connection_string, mode, pre_samples, post_samples,
			frequency, sample_count, timestamp_count, error_code, completed_at
		FROM captures
		WHERE id = ?`

	rec, err := scanHistoryRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCaptureNotFound
		}
		return nil, fmt.Errorf("querying capture by id: %w", err)
	}
	return rec, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanHistoryRecord scans one captures row.
func scanHistoryRecord(row rowScanner) (*HistoryRecord, error) {
	var (
		rec         HistoryRecord
		mode        int
		errorCode   int
		completedAt string
	)

	err := row.Scan(
		&rec.ID,
		&rec.ConnectionString,
		&mode,
		&rec.PreSamples,
		&rec.PostSamples,
		&rec.Frequency,
		&rec.SampleCount,
		&rec.TimestampCount,
		&errorCode,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Mode = Mode(mode)
	rec.ErrorCode = ErrorCode(errorCode)

	ts, err := time.Parse(time.RFC3339Nano, completedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing completed_at: %w", err)
	}
	rec.CompletedAt = ts

	return &rec, nil
}
