// Package downloader executes download tasks with a bounded worker pool.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
	"github.com/vertextoedge/book-cover-fetcher/internal/logger"
	"github.com/vertextoedge/book-cover-fetcher/internal/metrics"
	"github.com/vertextoedge/book-cover-fetcher/internal/port"
	"github.com/vertextoedge/book-cover-fetcher/internal/service/backoff"
)

// Recorder durably records a placed file.
type Recorder interface {
	RecordSuccess(ctx context.Context, entry domain.ResumeEntry) error
}

// Config contains downloader configuration
type Config struct {
	// Retry bounds attempts per task.
	Retry backoff.Policy

	// AttemptTimeout bounds a single transfer including placement.
	AttemptTimeout time.Duration

	// ProgressInterval is the minimum time between progress lines per task.
	ProgressInterval time.Duration
}

// DefaultConfig returns default downloader configuration
func DefaultConfig() Config {
	return Config{
		Retry:            backoff.DefaultPolicy(),
		AttemptTimeout:   2 * time.Minute,
		ProgressInterval: 5 * time.Second,
	}
}

// Downloader streams images into the output directory
type Downloader struct {
	config   Config
	fetcher  port.ImageFetcher
	fs       port.FileSystem
	recorder Recorder
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// New creates a new Downloader
func New(
	cfg Config,
	fetcher port.ImageFetcher,
	fs port.FileSystem,
	recorder Recorder,
	m *metrics.Collector,
	logger *zap.Logger,
) *Downloader {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 2 * time.Minute
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		config:   cfg,
		fetcher:  fetcher,
		fs:       fs,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
	}
}

// Run executes tasks on at most concurrency workers and returns one outcome
// per task, in task order.
//
// Cancelling ctx stops dispatch: undispatched tasks end Cancelled, and running
// tasks start no further attempts. A running attempt is never interrupted by
// ctx; it finishes its transfer, placement and record write.
func (d *Downloader) Run(ctx context.Context, tasks []*domain.DownloadTask, concurrency int) []domain.TaskOutcome {
	outcomes := make([]domain.TaskOutcome, len(tasks))
	if len(tasks) == 0 {
		return outcomes
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if concurrency > len(tasks) {
		concurrency = len(tasks)
	}

	d.logger.Info("download started",
		zap.Int("tasks", len(tasks)),
		zap.Int("workers", concurrency))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go d.worker(ctx, i, tasks, outcomes, jobs, &wg)
	}

	next := 0
dispatch:
	for ; next < len(tasks); next++ {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- next:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)

	for i := next; i < len(tasks); i++ {
		outcomes[i] = domain.Cancelled(tasks[i].AssetID())
		d.metrics.ObserveOutcome(outcomes[i], 0)
	}
	if next < len(tasks) {
		d.logger.Warn("interrupted, remaining tasks not dispatched",
			zap.Int("cancelled", len(tasks)-next))
	}

	wg.Wait()
	return outcomes
}

// worker processes task indexes from jobs
func (d *Downloader) worker(ctx context.Context, workerID int, tasks []*domain.DownloadTask, outcomes []domain.TaskOutcome, jobs <-chan int, wg *sync.WaitGroup) {
	defer wg.Done()

	workerName := fmt.Sprintf("worker-%d", workerID)
	for i := range jobs {
		task := tasks[i]
		if ctx.Err() != nil {
			outcomes[i] = domain.Cancelled(task.AssetID())
			d.metrics.ObserveOutcome(outcomes[i], 0)
			continue
		}

		start := time.Now()
		outcomes[i] = d.runTask(ctx, task, workerName)
		d.metrics.ObserveOutcome(outcomes[i], time.Since(start))
	}
}

// runTask drives one task to a terminal outcome
func (d *Downloader) runTask(ctx context.Context, task *domain.DownloadTask, workerName string) domain.TaskOutcome {
	log := d.logger.With(
		zap.String("worker", workerName),
		zap.String("asset_id", task.AssetID()))

	log.Debug("downloading cover",
		zap.String("url", task.Asset.ImageURL),
		zap.String("path", task.DestinationPath))

	var placed *port.PlacedFile
	err := d.config.Retry.Call(ctx.Done(), func(attempt int) error {
		task.BeginAttempt()
		d.metrics.AttemptStarted()

		var err error
		placed, err = d.attempt(ctx, task, log)
		if err != nil {
			task.LastError = err
		}
		return err
	}, func(err error, attempt int, delay time.Duration) {
		task.ScheduleRetry(err, delay)
		d.metrics.RetryScheduled()
		log.Warn("download attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err))
	})
	if err != nil {
		exhausted := backoff.IsExhausted(err)
		log.Error("download failed",
			zap.Int("attempts", task.Attempt),
			zap.Bool("attempts_exhausted", exhausted),
			zap.Error(err))
		return domain.Failed(task.AssetID(), err, task.Attempt, exhausted)
	}

	entry := domain.ResumeEntry{
		AssetID:  task.AssetID(),
		FileName: filepath.Base(placed.Path),
		Size:     placed.Size,
		SHA256:   placed.SHA256,
	}
	// The file is already in place; the record write must not be abandoned.
	if err := d.recorder.RecordSuccess(context.WithoutCancel(ctx), entry); err != nil {
		log.Error("cover saved but not recorded, it will be downloaded again next run",
			zap.String("path", placed.Path),
			zap.Error(err))
		return domain.Unrecorded(task.AssetID(), placed.Size, placed.SHA256, task.Attempt, err)
	}

	log.Info("cover saved",
		zap.String("path", placed.Path),
		logger.Bytes("size", placed.Size),
		zap.Int("attempts", task.Attempt))
	return domain.Succeeded(task.AssetID(), placed.Size, placed.SHA256, task.Attempt)
}

// attempt performs a single transfer and atomic placement. It runs on a
// context detached from ctx's cancellation and bounded by AttemptTimeout.
func (d *Downloader) attempt(ctx context.Context, task *domain.DownloadTask, log *zap.Logger) (*port.PlacedFile, error) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.config.AttemptTimeout)
	defer cancel()

	placed, err := d.transfer(actx, task, log)
	if err == nil {
		return placed, nil
	}

	switch {
	case domain.IsRetryable(err):
	case actx.Err() != nil:
		err = domain.NewRetryableError(fmt.Errorf("attempt timed out after %s: %w", d.config.AttemptTimeout, err), 0)
	case errors.Is(err, domain.ErrSizeMismatch):
		err = domain.NewRetryableError(err, 0)
	}
	return nil, err
}

func (d *Downloader) transfer(ctx context.Context, task *domain.DownloadTask, log *zap.Logger) (*port.PlacedFile, error) {
	resp, err := d.fetcher.Fetch(ctx, task.Asset.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	reader := newProgressReader(resp.Body, resp.ContentLength, d.config.ProgressInterval, log)
	placed, err := d.fs.WriteAtomic(task.DestinationPath, reader, resp.ContentLength)
	if err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}
	return placed, nil
}
