package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
)

// Load reads every resume entry
func (s *Store) Load(ctx context.Context) (*domain.ResumeRecord, error) {
	if s.isClosed() {
		return nil, domain.ErrStoreClosed
	}

	query := `
		SELECT asset_id, file_name, size, sha256, run_id, completed_at
		FROM resume_entries
		ORDER BY asset_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query resume entries: %w", err)
	}
	defer rows.Close()

	record := domain.NewResumeRecord()
	for rows.Next() {
		var e domain.ResumeEntry
		if err := rows.Scan(&e.AssetID, &e.FileName, &e.Size, &e.SHA256, &e.RunID, &e.CompletedAt); err != nil {
			return nil, err
		}
		if err := record.Add(e); err != nil {
			return nil, err
		}
	}

	return record, rows.Err()
}

// Record inserts entry inside a transaction. The commit is durable before
// Record returns.
func (s *Store) Record(ctx context.Context, entry domain.ResumeEntry) error {
	if s.isClosed() {
		return domain.ErrStoreClosed
	}
	if entry.AssetID == "" {
		return fmt.Errorf("%w: empty asset id", domain.ErrInvalidInput)
	}
	if entry.CompletedAt.IsZero() {
		entry.CompletedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing domain.ResumeEntry
	err = tx.QueryRowContext(ctx,
		"SELECT asset_id, file_name, size, sha256 FROM resume_entries WHERE asset_id = ?",
		entry.AssetID,
	).Scan(&existing.AssetID, &existing.FileName, &existing.Size, &existing.SHA256)

	switch {
	case err == nil:
		if existing.SameContent(entry) {
			return nil
		}
		return domain.ErrRecordConflict
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	query := `
		INSERT INTO resume_entries (
			asset_id, file_name, size, sha256, run_id, completed_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query,
		entry.AssetID, entry.FileName, entry.Size, entry.SHA256, entry.RunID, entry.CompletedAt.UTC(),
	); err != nil {
		if isUniqueConstraintError(err) {
			return domain.ErrRecordConflict
		}
		return err
	}

	return tx.Commit()
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// isUniqueConstraintError checks if the error is a unique constraint violation
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "duplicate key")
}
