package filesystem

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
	"github.com/vertextoedge/book-cover-fetcher/internal/port"
)

// TempSuffix marks in-flight downloads. Files carrying it are never a
// destination path.
const TempSuffix = ".downloading"

// Manager handles output directory operations
type Manager struct {
	rootDir    string
	bufferSize int
}

// Ensure Manager implements port.FileSystem
var _ port.FileSystem = (*Manager)(nil)

// NewManager creates a new filesystem manager
func NewManager(rootDir string) (*Manager, error) {
	return NewManagerWithBufferSize(rootDir, 256*1024)
}

// NewManagerWithBufferSize creates a new filesystem manager with custom buffer size
func NewManagerWithBufferSize(rootDir string, bufferSize int) (*Manager, error) {
	if strings.TrimSpace(rootDir) == "" {
		return nil, errors.New("output directory is required")
	}

	// Ensure root directory exists
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 256 * 1024
	}

	return &Manager{
		rootDir:    rootDir,
		bufferSize: bufferSize,
	}, nil
}

// RootDir returns the output directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// DestinationPath returns the final path for a file name
func (m *Manager) DestinationPath(fileName string) string {
	return filepath.Join(m.rootDir, filepath.Base(fileName))
}

// WriteAtomic writes reader to destPath via a temp file and rename
func (m *Manager) WriteAtomic(destPath string, reader io.Reader, expectedSize int64) (*port.PlacedFile, error) {
	dir := filepath.Dir(destPath)

	if expectedSize > 0 {
		if err := m.checkSpace(expectedSize); err != nil {
			return nil, err
		}
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(destPath)+".*"+TempSuffix)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := f.Name()
	committed := false
	defer func() {
		if !committed {
			f.Close()
			os.Remove(tempPath)
		}
	}()

	hasher := sha256.New()
	buf := make([]byte, m.bufferSize)
	written, err := io.CopyBuffer(io.MultiWriter(f, hasher), reader, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	if written == 0 {
		return nil, domain.ErrEmptyBody
	}
	if expectedSize >= 0 && written != expectedSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", domain.ErrSizeMismatch, written, expectedSize)
	}

	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return nil, fmt.Errorf("failed to chmod temp file: %w", err)
	}

	// Rename to final path, replacing any stale or partial copy.
	if err := os.Rename(tempPath, destPath); err != nil {
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}
	committed = true

	if err := syncDir(dir); err != nil {
		return nil, fmt.Errorf("failed to sync output dir: %w", err)
	}

	return &port.PlacedFile{
		Path:   destPath,
		Size:   written,
		SHA256: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// checkSpace fails with domain.ErrInsufficientSpace when size cannot fit.
// Platforms without disk statistics skip the check.
func (m *Manager) checkSpace(size int64) error {
	usage, err := m.GetDiskUsage()
	if err != nil || usage == nil {
		return nil
	}
	if uint64(size) > usage.Free {
		return fmt.Errorf("%w: need %d bytes, %d free", domain.ErrInsufficientSpace, size, usage.Free)
	}
	return nil
}

// StatFile returns the size of a file and whether it exists
func (m *Manager) StatFile(path string) (int64, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if !info.Mode().IsRegular() {
		return 0, false, nil
	}
	return info.Size(), true, nil
}

// HashFile returns the hex SHA-256 of a file
func (m *Manager) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.CopyBuffer(hasher, f, make([]byte, m.bufferSize)); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// CleanOldTempFiles removes temp files older than the specified duration
func (m *Manager) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	entries, err := os.ReadDir(m.rootDir)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), TempSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(threshold) {
			if removeErr := os.Remove(filepath.Join(m.rootDir, e.Name())); removeErr == nil {
				count++
			}
		}
	}
	return count, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}
	return nil
}
