// Package inventory decides which assets already have a complete local copy.
package inventory

import (
	"context"

	"go.uber.org/zap"

	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
	"github.com/vertextoedge/book-cover-fetcher/internal/port"
)

// Scanner checks resume entries against the output directory
type Scanner struct {
	fs         port.FileSystem
	verifyHash bool
	logger     *zap.Logger
}

// New creates a Scanner. With verifyHash set, every recorded file is re-hashed.
func New(fs port.FileSystem, verifyHash bool, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		fs:         fs,
		verifyHash: verifyHash,
		logger:     logger,
	}
}

// Scan returns the assets that are complete: a resume entry exists AND the
// recorded file is present with the recorded size (and hash, when verifying).
// A file without an entry, or an entry whose file is missing or changed, is
// incomplete. Scan only reads; the only error it returns is ctx's.
func (s *Scanner) Scan(ctx context.Context, record *domain.ResumeRecord) (domain.CompletedSet, error) {
	completed := make(domain.CompletedSet)
	if record == nil {
		return completed, nil
	}

	for _, entry := range record.Entries() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.verify(entry) {
			completed.Add(entry.AssetID)
		}
	}

	s.logger.Debug("scanned output directory",
		zap.Int("recorded", record.Len()),
		zap.Int("complete", len(completed)))
	return completed, nil
}

func (s *Scanner) verify(entry domain.ResumeEntry) bool {
	log := s.logger.With(zap.String("asset_id", entry.AssetID))
	path := s.fs.DestinationPath(entry.FileName)

	size, exists, err := s.fs.StatFile(path)
	switch {
	case err != nil:
		log.Warn("cannot stat recorded file, will download again", zap.String("path", path), zap.Error(err))
		return false
	case !exists:
		log.Info("recorded file is missing, will download again", zap.String("path", path))
		return false
	case size != entry.Size:
		log.Warn("recorded file has changed size, will download again",
			zap.String("path", path),
			zap.Int64("recorded_size", entry.Size),
			zap.Int64("size", size))
		return false
	}

	if !s.verifyHash || entry.SHA256 == "" {
		return true
	}

	sum, err := s.fs.HashFile(path)
	if err != nil {
		log.Warn("cannot hash recorded file, will download again", zap.String("path", path), zap.Error(err))
		return false
	}
	if sum != entry.SHA256 {
		log.Warn("recorded file content has changed, will download again", zap.String("path", path))
		return false
	}
	return true
}
