package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
	"github.com/vertextoedge/book-cover-fetcher/internal/domain/vo"
	"github.com/vertextoedge/book-cover-fetcher/internal/metrics"
	"github.com/vertextoedge/book-cover-fetcher/internal/port"
	"github.com/vertextoedge/book-cover-fetcher/internal/service/backoff"
)

// Config contains resolver configuration
type Config struct {
	// MaxAssets caps how many assets are resolved, in service order.
	MaxAssets int

	// PageSize is the listing page size requested from the service.
	PageSize int

	// Concurrency bounds parallel asset detail requests.
	Concurrency int

	// Gateway is the IPFS HTTP gateway prefix.
	Gateway string

	// VerifyCollection checks the catalog before listing assets.
	VerifyCollection bool

	// Retry applies to each metadata request individually.
	Retry backoff.Policy
}

// DefaultConfig returns default resolver configuration
func DefaultConfig() Config {
	retry := backoff.DefaultPolicy()
	retry.MaxAttempts = 3
	return Config{
		MaxAssets:        domain.MaxAssetsPerRun,
		PageSize:         100,
		Concurrency:      4,
		Gateway:          DefaultGateway,
		VerifyCollection: true,
		Retry:            retry,
	}
}

// Service resolves a collection id into its ordered asset records
type Service struct {
	client  port.MetadataClient
	catalog port.CollectionCatalog
	config  Config
	metrics *metrics.Collector
	logger  *zap.Logger
}

// New creates a new resolver. catalog may be nil, which skips verification.
func New(client port.MetadataClient, catalog port.CollectionCatalog, cfg Config, m *metrics.Collector, logger *zap.Logger) *Service {
	if cfg.MaxAssets <= 0 || cfg.MaxAssets > domain.MaxAssetsPerRun {
		cfg.MaxAssets = domain.MaxAssetsPerRun
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Retry.Clock == nil {
		cfg.Retry.Clock = clock.WallClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client:  client,
		catalog: catalog,
		config:  cfg,
		metrics: m,
		logger:  logger,
	}
}

// Resolve returns at most MaxAssets records in service order, with
// SequenceIndex set to each record's position. Any failure is a
// *domain.ResolutionError, except cancellation, which returns ctx.Err().
func (s *Service) Resolve(ctx context.Context, id vo.CollectionID) ([]domain.AssetRecord, error) {
	if !id.IsValid() {
		return nil, domain.NewResolutionError(domain.ResolutionNotFound, domain.ErrInvalidInput)
	}
	policyID := id.String()
	log := s.logger.With(zap.String("policy_id", policyID))

	if s.config.VerifyCollection && s.catalog != nil {
		var listed bool
		err := s.call(ctx, "has_collection", func(ctx context.Context) error {
			var err error
			listed, err = s.catalog.HasCollection(ctx, policyID)
			return err
		})
		if err != nil {
			return nil, s.classify(ctx, "", err)
		}
		if !listed {
			return nil, domain.NewResolutionError(domain.ResolutionNotFound,
				fmt.Errorf("%w: collection is not listed in the catalog", domain.ErrNotFound))
		}
	}

	assetIDs, err := s.listAssetIDs(ctx, policyID)
	if err != nil {
		return nil, err
	}
	log.Debug("listed policy assets", zap.Int("count", len(assetIDs)))

	records := make([]domain.AssetRecord, len(assetIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for i, assetID := range assetIDs {
		g.Go(func() error {
			var details *port.AssetDetails
			err := s.call(gctx, "get_asset", func(ctx context.Context) error {
				var err error
				details, err = s.client.GetAsset(ctx, assetID)
				return err
			})
			if err != nil {
				return s.classify(ctx, assetID, err)
			}

			record, err := buildRecord(assetID, i, details, s.config.Gateway)
			if err != nil {
				return err
			}
			records[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("resolved collection", zap.Int("assets", len(records)))
	return records, nil
}

// listAssetIDs pages through the policy listing until MaxAssets distinct
// ids are collected or the listing ends.
func (s *Service) listAssetIDs(ctx context.Context, policyID string) ([]string, error) {
	var ids []string
	seen := make(map[string]struct{})

	for page := 1; len(ids) < s.config.MaxAssets; page++ {
		var items []port.PolicyAsset
		err := s.call(ctx, "list_policy_assets", func(ctx context.Context) error {
			var err error
			items, err = s.client.ListPolicyAssets(ctx, policyID, page, s.config.PageSize)
			return err
		})
		if err != nil {
			return nil, s.classify(ctx, "", err)
		}

		if page == 1 && len(items) == 0 {
			return nil, domain.NewResolutionError(domain.ResolutionNotFound,
				fmt.Errorf("%w: policy has no assets", domain.ErrNotFound))
		}

		for _, it := range items {
			if it.AssetID == "" {
				return nil, domain.NewResolutionError(domain.ResolutionMalformedResponse,
					errors.New("policy listing contains an empty asset id"))
			}
			if _, dup := seen[it.AssetID]; dup {
				continue
			}
			seen[it.AssetID] = struct{}{}
			ids = append(ids, it.AssetID)
			if len(ids) == s.config.MaxAssets {
				break
			}
		}

		if len(items) < s.config.PageSize {
			break
		}
	}
	return ids, nil
}

// call runs one metadata request under the retry policy. Cancellation of ctx
// stops further attempts.
func (s *Service) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	return s.config.Retry.Call(ctx.Done(), func(attempt int) error {
		err := fn(ctx)
		s.metrics.MetadataRequest(operation, err)
		return err
	}, func(err error, attempt int, delay time.Duration) {
		s.logger.Warn("metadata request failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err))
	})
}

// classify maps a metadata failure to a ResolutionError
func (s *Service) classify(ctx context.Context, assetID string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var rerr *domain.ResolutionError
	if errors.As(err, &rerr) {
		return rerr
	}

	kind := domain.ResolutionServiceUnavailable
	switch code, _ := domain.StatusCode(err); {
	case errors.Is(err, domain.ErrNotFound):
		kind = domain.ResolutionNotFound
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		kind = domain.ResolutionUnauthorized
	case errors.Is(err, domain.ErrMalformedResponse):
		kind = domain.ResolutionMalformedResponse
	}
	return &domain.ResolutionError{Kind: kind, AssetID: assetID, Err: err}
}

// buildRecord extracts the cover image of one asset
func buildRecord(assetID string, index int, d *port.AssetDetails, gateway string) (domain.AssetRecord, error) {
	malformed := func(err error) error {
		return &domain.ResolutionError{Kind: domain.ResolutionMalformedResponse, AssetID: assetID, Err: err}
	}

	if d == nil || !d.HasOnchainMetadata {
		return domain.AssetRecord{}, malformed(errors.New("asset has no on-chain metadata"))
	}

	src, mediaType := pickImage(d)
	if src == "" {
		return domain.AssetRecord{}, malformed(fmt.Errorf("%w: asset metadata has no image source", domain.ErrMalformedURL))
	}

	imageURL, err := ResolveImageURL(src, gateway)
	if err != nil {
		return domain.AssetRecord{}, malformed(err)
	}

	return domain.AssetRecord{
		AssetID:       assetID,
		Name:          d.Name,
		ImageURL:      imageURL,
		MediaType:     mediaType,
		SequenceIndex: index,
	}, nil
}

// pickImage prefers the first file entry typed as an image (the high
// resolution cover), then the top-level image field, then the first file entry.
func pickImage(d *port.AssetDetails) (src, mediaType string) {
	for _, f := range d.Files {
		if f.Src != "" && strings.HasPrefix(strings.ToLower(f.MediaType), "image/") {
			return f.Src, f.MediaType
		}
	}
	if d.Image != "" {
		return d.Image, d.MediaType
	}
	for _, f := range d.Files {
		if f.Src != "" {
			return f.Src, f.MediaType
		}
	}
	return "", ""
}
