package capture_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/signalforge/capture-core/migrations"

	"github.com/signalforge/capture-core/internal/capture"
	"github.com/signalforge/capture-core/internal/infrastructure/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func testRecord(id string, completedAt time.Time) *capture.HistoryRecord {
	return &capture.HistoryRecord{
		ID:               id,
		ConnectionString: "/dev/ttyACM0",
		Mode:             capture.Mode8,
		PreSamples:       512,
		PostSamples:      4096,
		Frequency:        1_000_000,
		SampleCount:      4608,
		TimestampCount:   2,
		ErrorCode:        capture.CaptureNone,
		CompletedAt:      completedAt,
	}
}

func TestHistoryRepository_RecordAndGet(t *testing.T) {
	db := openTestDB(t)
	repo := capture.NewSQLiteHistoryRepository(db.DB)
	ctx := context.Background()

	want := testRecord("cap-001", time.Now().UTC().Truncate(time.Millisecond))
	if err := repo.Record(ctx, want); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "cap-001")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if got.ConnectionString != want.ConnectionString {
		t.Errorf("ConnectionString = %q, want %q", got.ConnectionString, want.ConnectionString)
	}
	if got.Mode != want.Mode {
		t.Errorf("Mode = %v, want %v", got.Mode, want.Mode)
	}
	if got.SampleCount != want.SampleCount {
		t.Errorf("SampleCount = %d, want %d", got.SampleCount, want.SampleCount)
	}
	if got.TimestampCount != want.TimestampCount {
		t.Errorf("TimestampCount = %d, want %d", got.TimestampCount, want.TimestampCount)
	}
	if got.ErrorCode != want.ErrorCode {
		t.Errorf("ErrorCode = %v, want %v", got.ErrorCode, want.ErrorCode)
	}
	if !got.CompletedAt.Equal(want.CompletedAt) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, want.CompletedAt)
	}
}

func TestHistoryRepository_GetByID_NotFound(t *testing.T) {
	db := openTestDB(t)
	repo := capture.NewSQLiteHistoryRepository(db.DB)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, capture.ErrCaptureNotFound) {
		t.Errorf("GetByID() error = %v, want ErrCaptureNotFound", err)
	}
}

func TestHistoryRepository_List_NewestFirst(t *testing.T) {
	db := openTestDB(t)
	repo := capture.NewSQLiteHistoryRepository(db.DB)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"cap-old", "cap-mid", "cap-new"} {
		rec := testRecord(id, base.Add(time.Duration(i)*time.Minute))
		if err := repo.Record(ctx, rec); err != nil {
			t.Fatalf("Record(%s) error = %v", id, err)
		}
	}

	got, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("List() returned %d rows, want 3", len(got))
	}
	if got[0].ID != "cap-new" || got[2].ID != "cap-old" {
		t.Errorf("List() order = [%s %s %s], want newest first", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestHistoryRepository_List_Limit(t *testing.T) {
	db := openTestDB(t)
	repo := capture.NewSQLiteHistoryRepository(db.DB)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		rec := testRecord(capture.GenerateID(), base.Add(time.Duration(i)*time.Second))
		if err := repo.Record(ctx, rec); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := repo.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("List(2) returned %d rows, want 2", len(got))
	}
}

func TestHistoryRepository_RecordFailedCapture(t *testing.T) {
	db := openTestDB(t)
	repo := capture.NewSQLiteHistoryRepository(db.DB)
	ctx := context.Background()

	rec := testRecord("cap-failed", time.Now().UTC())
	rec.SampleCount = 0
	rec.TimestampCount = 0
	rec.ErrorCode = capture.CaptureTimeout

	if err := repo.Record(ctx, rec); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "cap-failed")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.ErrorCode != capture.CaptureTimeout {
		t.Errorf("ErrorCode = %v, want CaptureTimeout", got.ErrorCode)
	}
	if got.SampleCount != 0 {
		t.Errorf("SampleCount = %d, want 0", got.SampleCount)
	}
}
