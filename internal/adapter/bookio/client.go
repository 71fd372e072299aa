// Package bookio checks collection ids against the Book.io collections catalog.
package bookio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/book-cover-fetcher/internal/adapter/httpclient"
	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
	"github.com/vertextoedge/book-cover-fetcher/internal/port"
)

// DefaultCollectionsURL is the public collections endpoint
const DefaultCollectionsURL = "https://api.book.io/api/v0/collections"

// Collection is one catalog entry
type Collection struct {
	CollectionID string `json:"collection_id"`
	Description  string `json:"description"`
	Blockchain   string `json:"blockchain"`
	Network      string `json:"network"`
}

type collectionsResponse struct {
	Type string       `json:"type"`
	Data []Collection `json:"data"`
}

// Client fetches the Book.io collection catalog once and caches it
type Client struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.Mutex
	collections map[string]Collection
}

// Ensure Client implements port.CollectionCatalog
var _ port.CollectionCatalog = (*Client)(nil)

// NewClient creates a new catalog client
func NewClient(collectionsURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if collectionsURL == "" {
		collectionsURL = DefaultCollectionsURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := httpclient.DefaultOptions()
	if timeout > 0 {
		opts.Timeout = timeout
	}
	return &Client{
		url:        collectionsURL,
		httpClient: httpclient.New(opts),
		logger:     logger,
	}
}

// HasCollection reports whether collectionID is listed in the catalog
func (c *Client) HasCollection(ctx context.Context, collectionID string) (bool, error) {
	collections, err := c.Collections(ctx)
	if err != nil {
		return false, err
	}
	_, ok := collections[strings.ToLower(collectionID)]
	return ok, nil
}

// Collections returns the catalog keyed by lowercase collection id
func (c *Client) Collections(ctx context.Context) (map[string]Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collections != nil {
		return c.collections, nil
	}

	resp, err := httpclient.Get(ctx, c.httpClient, c.url, http.Header{"Accept": []string{"application/json"}})
	if err != nil {
		return nil, fmt.Errorf("fetch collections: %w", err)
	}
	defer httpclient.Drain(resp.Body)

	if err := httpclient.CheckStatus(resp); err != nil {
		return nil, fmt.Errorf("fetch collections: %w", err)
	}

	var body collectionsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("fetch collections: %w: %v", domain.ErrMalformedResponse, err)
	}

	collections := make(map[string]Collection, len(body.Data))
	for _, col := range body.Data {
		collections[strings.ToLower(strings.TrimSpace(col.CollectionID))] = col
	}
	c.collections = collections

	c.logger.Debug("fetched book.io collections", zap.Int("count", len(collections)))
	return collections, nil
}
