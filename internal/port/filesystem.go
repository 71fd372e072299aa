package port

import (
	"io"
	"time"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}

// PlacedFile describes a file that was atomically placed at its destination.
type PlacedFile struct {
	Path   string
	Size   int64
	SHA256 string
}

// FileSystem defines the interface for output directory operations
type FileSystem interface {
	// RootDir returns the output directory
	RootDir() string

	// DestinationPath returns the final path for a file name in the output directory
	DestinationPath(fileName string) string

	// WriteAtomic streams reader into a temp file next to destPath, verifies the
	// byte count against expectedSize (-1 when unknown; zero bytes is always an
	// error), then renames it over destPath. destPath is never observed partially
	// written; on error the temp file is removed.
	WriteAtomic(destPath string, reader io.Reader, expectedSize int64) (*PlacedFile, error)

	// StatFile returns the size of a file and whether it exists
	StatFile(path string) (int64, bool, error)

	// HashFile returns the hex SHA-256 of a file
	HashFile(path string) (string, error)

	// GetDiskUsage returns disk usage statistics for the output directory
	GetDiskUsage() (*DiskUsage, error)

	// CleanOldTempFiles removes temp files older than the specified duration
	// Returns the number of files deleted
	CleanOldTempFiles(olderThan time.Duration) (int, error)
}
