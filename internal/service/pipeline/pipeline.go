// Package pipeline runs one fetch: validate, resolve, diff against local
// state, download and summarize.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
	"github.com/vertextoedge/book-cover-fetcher/internal/domain/vo"
	"github.com/vertextoedge/book-cover-fetcher/internal/metrics"
	"github.com/vertextoedge/book-cover-fetcher/internal/service/maintenance"
)

// Process exit codes
const (
	ExitOK                = 0
	ExitInvalidIdentifier = 1
	ExitResolutionFailed  = 2
	ExitPartialFailure    = 3
	ExitStartupError      = 4
)

// Resolver turns a collection id into asset records
type Resolver interface {
	Resolve(ctx context.Context, id vo.CollectionID) ([]domain.AssetRecord, error)
}

// Inventory reports the assets already complete locally
type Inventory interface {
	Scan(ctx context.Context, record *domain.ResumeRecord) (domain.CompletedSet, error)
}

// Planner builds pending download tasks
type Planner interface {
	Plan(assets []domain.AssetRecord, completed domain.CompletedSet) []*domain.DownloadTask
}

// Downloader executes download tasks
type Downloader interface {
	Run(ctx context.Context, tasks []*domain.DownloadTask, concurrency int) []domain.TaskOutcome
}

// ResumeLoader reads the persisted resume record
type ResumeLoader interface {
	Load(ctx context.Context) (*domain.ResumeRecord, error)
}

// Maintainer tidies the output directory before a run
type Maintainer interface {
	Run() maintenance.Report
}

// Deps are the components a Pipeline drives. Maintenance and Metrics may be nil.
type Deps struct {
	Resolver    Resolver
	Inventory   Inventory
	Planner     Planner
	Downloader  Downloader
	Resume      ResumeLoader
	Maintenance Maintainer
	Metrics     *metrics.Collector
}

// Request is one invocation
type Request struct {
	PolicyID    string
	Concurrency int

	// RunID tags log lines and resume entries; generated when empty.
	RunID string
}

// Result is the outcome of one invocation
type Result struct {
	RunID    string
	PolicyID string
	Summary  domain.RunSummary
	Outcomes []domain.TaskOutcome

	// Err is the error that ended the run early, if any.
	Err error
}

// ExitCode maps the result to a process exit code
func (r *Result) ExitCode() int {
	if r.Err != nil {
		return exitCodeFor(r.Err)
	}
	if !r.Summary.Complete() {
		return ExitPartialFailure
	}
	return ExitOK
}

func exitCodeFor(err error) int {
	var invalid *vo.InvalidIdentifierError
	var resolution *domain.ResolutionError
	switch {
	case errors.As(err, &invalid):
		return ExitInvalidIdentifier
	case errors.As(err, &resolution):
		return ExitResolutionFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Interrupted with work left; completed files stay valid.
		return ExitPartialFailure
	default:
		return ExitStartupError
	}
}

// Pipeline wires the fetch stages together
type Pipeline struct {
	deps   Deps
	logger *zap.Logger
}

// New creates a new Pipeline
func New(deps Deps, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, logger: logger}
}

// Run executes one fetch. The returned error is the same as Result.Err; a
// run where some downloads failed is not an error, see Result.ExitCode.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	result := &Result{RunID: req.RunID, PolicyID: req.PolicyID}
	fail := func(err error) (*Result, error) {
		result.Err = err
		return result, err
	}

	// No I/O happens before the identifier is valid.
	id, err := vo.ParseCollectionID(req.PolicyID)
	if err != nil {
		p.logger.Error("invalid policy id", zap.String("policy_id", req.PolicyID), zap.Error(err))
		return fail(err)
	}
	result.PolicyID = id.String()

	log := p.logger.With(zap.String("run_id", req.RunID), zap.String("policy_id", id.String()))
	log.Info("fetch started")
	start := time.Now()

	if p.deps.Maintenance != nil {
		p.deps.Maintenance.Run()
	}

	record, err := p.deps.Resume.Load(ctx)
	if err != nil {
		log.Error("failed to load resume record", zap.Error(err))
		return fail(err)
	}

	assets, err := p.deps.Resolver.Resolve(ctx, id)
	if err != nil {
		log.Error("failed to resolve collection", zap.Error(err))
		return fail(err)
	}

	completed, err := p.deps.Inventory.Scan(ctx, record)
	if err != nil {
		return fail(err)
	}

	tasks := p.deps.Planner.Plan(assets, completed)
	result.Summary.Resolved = len(assets)
	result.Summary.Planned = len(tasks)
	result.Summary.Skipped = len(assets) - len(tasks)
	p.deps.Metrics.ObserveResolution(result.Summary.Resolved, result.Summary.Skipped)

	if len(tasks) == 0 {
		log.Info("all covers already downloaded, nothing to do", zap.Int("assets", len(assets)))
	} else {
		log.Info("download planned",
			zap.Int("assets", len(assets)),
			zap.Int("skipped", result.Summary.Skipped),
			zap.Int("pending", len(tasks)))
		result.Outcomes = p.deps.Downloader.Run(ctx, tasks, req.Concurrency)
	}

	for _, o := range result.Outcomes {
		result.Summary.Add(o)
		if o.Status != domain.OutcomeSucceeded {
			log.Warn("asset not completed", zap.String("outcome", o.String()))
		}
	}

	s := result.Summary
	log.Info("fetch finished",
		zap.Int("resolved", s.Resolved),
		zap.Int("skipped", s.Skipped),
		zap.Int("planned", s.Planned),
		zap.Int("succeeded", s.Succeeded),
		zap.Int("failed", s.Failed),
		zap.Int("unrecorded", s.Unrecorded),
		zap.Int("cancelled", s.Cancelled),
		zap.String("downloaded", humanize.Bytes(uint64(s.Bytes))),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)),
		zap.Int("exit_code", result.ExitCode()))

	return result, nil
}

// String is a one-line human readable summary
func (r *Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("policy %s: %v", r.PolicyID, r.Err)
	}
	s := r.Summary
	return fmt.Sprintf("policy %s: %d resolved, %d already present, %d downloaded, %d failed, %d unrecorded, %d cancelled (%s)",
		r.PolicyID, s.Resolved, s.Skipped, s.Succeeded, s.Failed, s.Unrecorded, s.Cancelled, humanize.Bytes(uint64(s.Bytes)))
}
