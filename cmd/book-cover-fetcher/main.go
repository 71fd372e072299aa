package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/vertextoedge/book-cover-fetcher/internal/adapter/blockfrost"
	"github.com/vertextoedge/book-cover-fetcher/internal/adapter/bookio"
	"github.com/vertextoedge/book-cover-fetcher/internal/adapter/filesystem"
	"github.com/vertextoedge/book-cover-fetcher/internal/adapter/imagefetch"
	"github.com/vertextoedge/book-cover-fetcher/internal/adapter/manifest"
	"github.com/vertextoedge/book-cover-fetcher/internal/adapter/sqlite"
	"github.com/vertextoedge/book-cover-fetcher/internal/config"
	"github.com/vertextoedge/book-cover-fetcher/internal/domain/vo"
	"github.com/vertextoedge/book-cover-fetcher/internal/logger"
	"github.com/vertextoedge/book-cover-fetcher/internal/metrics"
	"github.com/vertextoedge/book-cover-fetcher/internal/port"
	"github.com/vertextoedge/book-cover-fetcher/internal/service/backoff"
	"github.com/vertextoedge/book-cover-fetcher/internal/service/downloader"
	"github.com/vertextoedge/book-cover-fetcher/internal/service/inventory"
	"github.com/vertextoedge/book-cover-fetcher/internal/service/maintenance"
	"github.com/vertextoedge/book-cover-fetcher/internal/service/pipeline"
	"github.com/vertextoedge/book-cover-fetcher/internal/service/planner"
	"github.com/vertextoedge/book-cover-fetcher/internal/service/resolver"
	"github.com/vertextoedge/book-cover-fetcher/internal/service/tracker"
)

const version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command line flags
	flags := pflag.NewFlagSet("book-cover-fetcher", pflag.ContinueOnError)
	flags.String("policy-id", "", "Collection policy id (56 hex characters)")
	flags.String("output-dir", "", "Directory the cover images are written to")
	configPath := flags.String("config", "", "Path to configuration file")
	flags.Int("concurrency", 3, "Parallel image downloads (1-10)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text or json")
	showVersion := flags.Bool("version", false, "Print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return pipeline.ExitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return pipeline.ExitStartupError
	}
	if *showVersion {
		fmt.Println("book-cover-fetcher", version)
		return pipeline.ExitOK
	}

	// Load configuration
	cfg, err := config.Load(config.LoadOptions{ConfigPath: *configPath, Flags: flags})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return pipeline.ExitStartupError
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return pipeline.ExitStartupError
	}
	defer logger.Sync()
	zapLogger := logger.GetZapLogger()

	// A bad identifier is reported before anything else is touched.
	if _, err := vo.ParseCollectionID(cfg.Run.PolicyID); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid policy id: %v\n", err)
		return pipeline.ExitInvalidIdentifier
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return pipeline.ExitStartupError
	}

	runID := uuid.NewString()
	zapLogger = zapLogger.With(zap.String("run_id", runID))
	zapLogger.Info("starting book-cover-fetcher",
		zap.String("version", version),
		zap.String("output_dir", cfg.Run.OutputDir),
		zap.String("resume_backend", cfg.Resume.Backend))

	// Initialize filesystem manager
	fsManager, err := filesystem.NewManager(cfg.Run.OutputDir)
	if err != nil {
		zapLogger.Error("failed to open output directory", zap.Error(err))
		return pipeline.ExitStartupError
	}

	// Open resume store
	store, err := openResumeStore(cfg)
	if err != nil {
		zapLogger.Error("failed to open resume record", zap.Error(err))
		return pipeline.ExitStartupError
	}
	resumeTracker := tracker.New(store, runID, zapLogger)
	defer func() {
		if err := resumeTracker.Close(); err != nil {
			zapLogger.Error("failed to close resume record", zap.Error(err))
		}
	}()

	// Create metadata clients
	blockfrostClient, err := blockfrost.NewClient(blockfrost.Config{
		BaseURL:           cfg.Blockfrost.BaseURL,
		ProjectID:         cfg.Blockfrost.ProjectID,
		RequestsPerSecond: cfg.Blockfrost.RequestsPerSecond,
		Burst:             cfg.Blockfrost.Burst,
		Timeout:           cfg.Blockfrost.GetTimeout(),
	}, zapLogger)
	if err != nil {
		zapLogger.Error("failed to create blockfrost client", zap.Error(err))
		return pipeline.ExitStartupError
	}
	var catalog port.CollectionCatalog
	if cfg.BookIO.VerifyCollection {
		catalog = bookio.NewClient(cfg.BookIO.CollectionsURL, cfg.Blockfrost.GetTimeout(), zapLogger)
	}

	collector := metrics.NewCollector()

	// Create resolver
	resolverCfg := resolver.DefaultConfig()
	resolverCfg.PageSize = cfg.Blockfrost.PageSize
	resolverCfg.Concurrency = cfg.Blockfrost.Concurrency
	resolverCfg.Gateway = cfg.IPFS.Gateway
	resolverCfg.VerifyCollection = cfg.BookIO.VerifyCollection
	resolverCfg.Retry.MaxAttempts = cfg.Blockfrost.MaxAttempts
	resolverService := resolver.New(blockfrostClient, catalog, resolverCfg, collector, zapLogger)

	// Create downloader
	downloaderService := downloader.New(downloader.Config{
		Retry: backoff.Policy{
			MaxAttempts: cfg.Download.MaxAttempts,
			Initial:     cfg.Download.GetInitialBackoff(),
			Max:         cfg.Download.GetMaxBackoff(),
			Jitter:      true,
		},
		AttemptTimeout:   cfg.Download.GetTimeout(),
		ProgressInterval: cfg.Download.GetProgressInterval(),
	}, imagefetch.NewFetcher(cfg.Download.Concurrency), fsManager, resumeTracker, collector, zapLogger)

	maintenanceService := maintenance.New(&maintenance.Config{
		TempFileMaxAge: cfg.Download.GetTempFileMaxAge(),
	}, fsManager, zapLogger)

	fetch := pipeline.New(pipeline.Deps{
		Resolver:    resolverService,
		Inventory:   inventory.New(fsManager, cfg.Resume.VerifyHash, zapLogger),
		Planner:     planner.New(fsManager, zapLogger),
		Downloader:  downloaderService,
		Resume:      resumeTracker,
		Maintenance: maintenanceService,
		Metrics:     collector,
	}, zapLogger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		zapLogger.Warn("interrupt received, finishing in-flight downloads (interrupt again to abort)")
		// A second signal terminates immediately.
		signal.Reset(os.Interrupt, syscall.SIGTERM)
		cancel()
	}()

	result, _ := fetch.Run(ctx, pipeline.Request{
		PolicyID:    cfg.Run.PolicyID,
		Concurrency: cfg.Download.Concurrency,
		RunID:       runID,
	})
	code := result.ExitCode()
	fmt.Println(result.String())

	collector.ObserveRunEnd(code, time.Now())
	if err := collector.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		zapLogger.Warn("failed to write metrics textfile", zap.String("path", cfg.Metrics.Textfile), zap.Error(err))
	}

	return code
}

// openResumeStore opens the configured resume backend inside the output directory
func openResumeStore(cfg *config.Config) (port.ResumeStore, error) {
	switch cfg.Resume.Backend {
	case config.ResumeBackendManifest:
		return manifest.Open(filepath.Join(cfg.Run.OutputDir, manifest.DefaultFileName))
	default:
		return sqlite.Open(filepath.Join(cfg.Run.OutputDir, sqlite.DefaultFileName))
	}
}
