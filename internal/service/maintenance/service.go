// Package maintenance tidies the output directory before a run.
package maintenance

import (
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/vertextoedge/book-cover-fetcher/internal/port"
)

// Config contains maintenance service configuration
type Config struct {
	// TempFileMaxAge is the maximum age of temp files before cleanup
	TempFileMaxAge time.Duration

	// DiskUsageWarnPercent logs a warning when the output filesystem is fuller
	DiskUsageWarnPercent float64
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		TempFileMaxAge:       24 * time.Hour,
		DiskUsageWarnPercent: 90,
	}
}

// Report describes what a maintenance pass did
type Report struct {
	TempFilesRemoved int

	// Usage is nil when the platform has no disk statistics.
	Usage *port.DiskUsage
}

// Service handles pre-run maintenance
type Service struct {
	config *Config
	fs     port.FileSystem
	logger *zap.Logger
}

// New creates a new maintenance Service
func New(cfg *Config, fs port.FileSystem, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.TempFileMaxAge == 0 {
		cfg.TempFileMaxAge = 24 * time.Hour
	}
	if cfg.DiskUsageWarnPercent == 0 {
		cfg.DiskUsageWarnPercent = 90
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config: cfg,
		fs:     fs,
		logger: logger,
	}
}

// Run removes stale temp files and reports disk usage. Failures are logged,
// never returned; a run can proceed without maintenance.
func (s *Service) Run() Report {
	var report Report
	report.TempFilesRemoved = s.cleanupTempFiles()
	report.Usage = s.checkDiskUsage()
	return report
}

// cleanupTempFiles removes temp files left by interrupted runs
func (s *Service) cleanupTempFiles() int {
	fileCount, err := s.fs.CleanOldTempFiles(s.config.TempFileMaxAge)
	if err != nil {
		s.logger.Error("failed to cleanup old temp files", zap.Error(err))
		return 0
	}
	if fileCount > 0 {
		s.logger.Info("cleaned up old temp files", zap.Int("count", fileCount))
	}
	return fileCount
}

func (s *Service) checkDiskUsage() *port.DiskUsage {
	usage, err := s.fs.GetDiskUsage()
	if err != nil {
		s.logger.Warn("failed to read disk usage", zap.Error(err))
		return nil
	}
	if usage == nil {
		return nil
	}

	fields := []zap.Field{
		zap.String("free", humanize.IBytes(usage.Free)),
		zap.String("total", humanize.IBytes(usage.Total)),
		zap.Float64("used_percent", usage.UsedPct),
	}
	if usage.UsedPct >= s.config.DiskUsageWarnPercent {
		s.logger.Warn("output filesystem is nearly full", fields...)
	} else {
		s.logger.Debug("output filesystem usage", fields...)
	}
	return usage
}
