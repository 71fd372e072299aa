package port

import (
	"context"

	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
)

// ResumeStore persists the resume record of one output directory.
type ResumeStore interface {
	// Load reads every persisted entry. A store that has never been
	// written returns an empty record, not an error.
	Load(ctx context.Context) (*domain.ResumeRecord, error)

	// Record durably persists entry before returning.
	// Re-recording identical content is a no-op; a different value for an
	// existing asset returns domain.ErrRecordConflict.
	Record(ctx context.Context, entry domain.ResumeEntry) error

	// Close releases the store.
	Close() error
}
