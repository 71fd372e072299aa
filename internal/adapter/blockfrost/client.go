// Package blockfrost is a minimal client for the Blockfrost Cardano REST API,
// covering the two endpoints the resolver needs.
package blockfrost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vertextoedge/book-cover-fetcher/internal/adapter/httpclient"
	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
	"github.com/vertextoedge/book-cover-fetcher/internal/port"
)

// DefaultBaseURL is the Cardano mainnet endpoint
const DefaultBaseURL = "https://cardano-mainnet.blockfrost.io/api/v0"

// maxBodyBytes bounds a single metadata response
const maxBodyBytes = 4 << 20

// Config contains client configuration
type Config struct {
	BaseURL   string
	ProjectID string

	// RequestsPerSecond and Burst feed a token bucket shared by all requests.
	// A non-positive rate disables limiting.
	RequestsPerSecond float64
	Burst             int

	Timeout time.Duration
}

// DefaultConfig returns the default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		RequestsPerSecond: 10,
		Burst:             10,
		Timeout:           30 * time.Second,
	}
}

// Client is a Blockfrost API client
type Client struct {
	baseURL    string
	projectID  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// Ensure Client implements port.MetadataClient
var _ port.MetadataClient = (*Client)(nil)

// NewClient creates a new Blockfrost client. The project id is required.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("blockfrost project_id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid blockfrost base url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	opts := httpclient.DefaultOptions()
	if cfg.Timeout > 0 {
		opts.Timeout = cfg.Timeout
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		projectID:  cfg.ProjectID,
		httpClient: httpclient.New(opts),
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// ListPolicyAssets returns one page of assets minted under policyID
func (c *Client) ListPolicyAssets(ctx context.Context, policyID string, page, count int) ([]port.PolicyAsset, error) {
	params := url.Values{}
	params.Set("count", strconv.Itoa(count))
	params.Set("page", strconv.Itoa(page))
	params.Set("order", "asc")

	var items []policyAssetJSON
	endpoint := "/assets/policy/" + url.PathEscape(policyID) + "?" + params.Encode()
	if err := c.getJSON(ctx, endpoint, &items); err != nil {
		return nil, fmt.Errorf("list assets of policy %s page %d: %w", policyID, page, err)
	}

	assets := make([]port.PolicyAsset, 0, len(items))
	for _, it := range items {
		assets = append(assets, port.PolicyAsset{AssetID: it.Asset, Quantity: it.Quantity})
	}
	return assets, nil
}

// GetAsset returns the metadata of a single asset
func (c *Client) GetAsset(ctx context.Context, assetID string) (*port.AssetDetails, error) {
	var body assetJSON
	if err := c.getJSON(ctx, "/assets/"+url.PathEscape(assetID), &body); err != nil {
		return nil, fmt.Errorf("get asset %s: %w", assetID, err)
	}

	details := &port.AssetDetails{
		AssetID:  body.Asset,
		PolicyID: body.PolicyID,
	}
	if details.AssetID == "" {
		details.AssetID = assetID
	}

	if md := body.OnchainMetadata; md != nil {
		details.HasOnchainMetadata = true
		details.Name = md.Name.String()
		details.Image = md.Image.String()
		details.MediaType = md.MediaType.String()
		for _, f := range md.Files {
			details.Files = append(details.Files, port.AssetFile{
				Name:      f.Name.String(),
				MediaType: f.MediaType.String(),
				Src:       f.Src.String(),
			})
		}
	}

	return details, nil
}

// getJSON performs a rate-limited GET and decodes the body into v
func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	header := http.Header{}
	header.Set("project_id", c.projectID)
	header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := httpclient.Get(ctx, c.httpClient, c.baseURL+endpoint, header)
	if err != nil {
		return err
	}
	defer httpclient.Drain(resp.Body)

	c.logger.Debug("blockfrost request",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if err := httpclient.CheckStatus(resp); err != nil {
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
		}
		if msg := readErrorMessage(resp.Body); msg != "" {
			return fmt.Errorf("%w (%s)", err, msg)
		}
		return err
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return httpclient.ClassifyError(ctx, err)
		}
		return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return nil
}

func readErrorMessage(body io.Reader) string {
	var e errorJSON
	if err := json.NewDecoder(io.LimitReader(body, 64*1024)).Decode(&e); err != nil {
		return ""
	}
	return e.Message
}
