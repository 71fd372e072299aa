// Package imagefetch opens image transfers from IPFS gateways and plain HTTP(S) hosts.
package imagefetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/vertextoedge/book-cover-fetcher/internal/adapter/httpclient"
	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
	"github.com/vertextoedge/book-cover-fetcher/internal/port"
)

// Fetcher implements port.ImageFetcher
type Fetcher struct {
	httpClient *http.Client
}

// Ensure Fetcher implements port.ImageFetcher
var _ port.ImageFetcher = (*Fetcher)(nil)

// NewFetcher creates a fetcher. Transfers have no client-side timeout and are
// bounded by the caller's context instead.
func NewFetcher(maxConnsPerHost int) *Fetcher {
	opts := httpclient.DefaultOptions()
	opts.Timeout = 0
	opts.DisableCompression = true
	opts.ResponseHeaderTimeout = 60 * time.Second
	if maxConnsPerHost > 0 {
		opts.MaxIdleConnsPerHost = maxConnsPerHost
	}
	return &Fetcher{httpClient: httpclient.New(opts)}
}

// NewFetcherWithClient creates a fetcher on an existing client
func NewFetcherWithClient(client *http.Client) *Fetcher {
	return &Fetcher{httpClient: client}
}

// Fetch starts a GET transfer for rawURL
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*port.ImageResponse, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", domain.ErrMalformedURL, rawURL)
	}

	resp, err := httpclient.Get(ctx, f.httpClient, u.String(), http.Header{"Accept": []string{"image/*,*/*;q=0.8"}})
	if err != nil {
		return nil, err
	}

	if err := httpclient.CheckStatus(resp); err != nil {
		httpclient.Drain(resp.Body)
		return nil, err
	}

	return &port.ImageResponse{
		Body:          &classifyingBody{ctx: ctx, rc: resp.Body},
		ContentLength: resp.ContentLength,
		ContentType:   resp.Header.Get("Content-Type"),
	}, nil
}

// classifyingBody marks mid-transfer read failures as retryable
type classifyingBody struct {
	ctx context.Context
	rc  io.ReadCloser
}

func (b *classifyingBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if err != nil && err != io.EOF {
		err = httpclient.ClassifyError(b.ctx, err)
	}
	return n, err
}

func (b *classifyingBody) Close() error {
	return b.rc.Close()
}
