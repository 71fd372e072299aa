// Package manifest stores the resume record as a JSON document next to the
// downloaded images. Every write replaces the whole document atomically.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
	"github.com/vertextoedge/book-cover-fetcher/internal/port"
)

// DefaultFileName is the manifest created inside the output directory.
const DefaultFileName = ".book-cover-fetcher.json"

// FormatVersion is written into every manifest. Readers accept any version
// and ignore fields they do not know.
const FormatVersion = 1

type document struct {
	Version   int         `json:"version"`
	UpdatedAt time.Time   `json:"updated_at"`
	Entries   []entryJSON `json:"entries"`
}

type entryJSON struct {
	AssetID     string    `json:"asset_id"`
	FileName    string    `json:"file_name"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256,omitempty"`
	RunID       string    `json:"run_id,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Store implements port.ResumeStore on a single JSON file
type Store struct {
	path string

	mu     sync.Mutex
	record *domain.ResumeRecord
	closed bool
}

// Ensure Store implements port.ResumeStore
var _ port.ResumeStore = (*Store)(nil)

// Open reads the manifest at path. A missing file is an empty record.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("manifest path is required")
	}

	record, err := readManifest(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	return &Store{path: path, record: record}, nil
}

// Load returns a copy of the current record
func (s *Store) Load(ctx context.Context) (*domain.ResumeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrStoreClosed
	}

	out := domain.NewResumeRecord()
	for _, e := range s.record.Entries() {
		_ = out.Add(e)
	}
	return out, nil
}

// Record adds entry and rewrites the manifest before returning
func (s *Store) Record(ctx context.Context, entry domain.ResumeEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.AssetID == "" {
		return fmt.Errorf("%w: empty asset id", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrStoreClosed
	}

	if existing, ok := s.record.Get(entry.AssetID); ok {
		if existing.SameContent(entry) {
			return nil
		}
		return domain.ErrRecordConflict
	}

	if entry.CompletedAt.IsZero() {
		entry.CompletedAt = time.Now().UTC()
	}

	// Write the candidate first; memory only changes once the file is durable.
	next := domain.NewResumeRecord()
	for _, e := range s.record.Entries() {
		_ = next.Add(e)
	}
	if err := next.Add(entry); err != nil {
		return err
	}
	if err := writeManifest(s.path, next); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	s.record = next
	return nil
}

// Close marks the store closed
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func readManifest(path string) (*domain.ResumeRecord, error) {
	record := domain.NewResumeRecord()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return record, nil
		}
		return nil, err
	}
	defer f.Close()

	var doc document
	dec := json.NewDecoder(f)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return record, nil
		}
		return nil, err
	}

	for _, e := range doc.Entries {
		if e.AssetID == "" {
			continue
		}
		if err := record.Add(domain.ResumeEntry{
			AssetID:     e.AssetID,
			FileName:    e.FileName,
			Size:        e.Size,
			SHA256:      e.SHA256,
			RunID:       e.RunID,
			CompletedAt: e.CompletedAt,
		}); err != nil {
			return nil, fmt.Errorf("asset %s: %w", e.AssetID, err)
		}
	}
	return record, nil
}

func writeManifest(path string, record *domain.ResumeRecord) error {
	entries := record.Entries()
	doc := document{
		Version:   FormatVersion,
		UpdatedAt: time.Now().UTC(),
		Entries:   make([]entryJSON, 0, len(entries)),
	}
	for _, e := range entries {
		doc.Entries = append(doc.Entries, entryJSON{
			AssetID:     e.AssetID,
			FileName:    e.FileName,
			Size:        e.Size,
			SHA256:      e.SHA256,
			RunID:       e.RunID,
			CompletedAt: e.CompletedAt.UTC(),
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomicDurable(path, append(data, '\n'), 0o644)
}

func writeFileAtomicDurable(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
