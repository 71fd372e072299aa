package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
)

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(filepath.Join(dir, DefaultFileName))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func TestStore_LoadEmpty(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	record, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if record.Len() != 0 {
		t.Errorf("Len() = %d, want 0", record.Len())
	}

	v, err := s.SchemaVersion()
	if err != nil || v != "1" {
		t.Errorf("SchemaVersion() = (%q, %v), want (\"1\", nil)", v, err)
	}
}

func TestStore_RecordPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := openTestStore(t, dir)
	entry := domain.ResumeEntry{
		AssetID:     "asset1",
		FileName:    "asset1.png",
		Size:        42,
		SHA256:      "abc",
		RunID:       "run-1",
		CompletedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := s.Record(ctx, entry); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s = openTestStore(t, dir)
	defer s.Close()

	record, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got, ok := record.Get("asset1")
	if !ok {
		t.Fatal("entry missing after reopen")
	}
	if !got.SameContent(entry) || got.RunID != "run-1" {
		t.Errorf("entry = %+v, want %+v", got, entry)
	}
	if !got.CompletedAt.Equal(entry.CompletedAt) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, entry.CompletedAt)
	}
}

func TestStore_RecordMonotonic(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()
	ctx := context.Background()

	entry := domain.ResumeEntry{AssetID: "a", FileName: "a.png", Size: 1, SHA256: "h1", RunID: "r1"}
	if err := s.Record(ctx, entry); err != nil {
		t.Fatal(err)
	}

	again := entry
	again.RunID = "r2"
	if err := s.Record(ctx, again); err != nil {
		t.Errorf("re-record identical content error = %v", err)
	}

	conflict := entry
	conflict.Size = 2
	if err := s.Record(ctx, conflict); !errors.Is(err, domain.ErrRecordConflict) {
		t.Errorf("conflicting Record() error = %v, want ErrRecordConflict", err)
	}

	record, _ := s.Load(ctx)
	if got, _ := record.Get("a"); got.Size != 1 || got.RunID != "r1" {
		t.Errorf("entry changed: %+v", got)
	}
}

func TestStore_Closed(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	err := s.Record(context.Background(), domain.ResumeEntry{AssetID: "a"})
	if !errors.Is(err, domain.ErrStoreClosed) {
		t.Errorf("Record() after close = %v, want ErrStoreClosed", err)
	}
}

func TestIsUniqueConstraintError(t *testing.T) {
	if isUniqueConstraintError(nil) {
		t.Error("nil is not a constraint error")
	}
	if !isUniqueConstraintError(errors.New("constraint failed: UNIQUE constraint failed: resume_entries.asset_id")) {
		t.Error("sqlite unique violation should be detected")
	}
}
