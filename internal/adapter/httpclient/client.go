// Package httpclient builds the pooled HTTP clients shared by the remote
// adapters and maps HTTP failures onto the domain error taxonomy.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
)

// UserAgent is sent on every request.
const UserAgent = "book-cover-fetcher/1.0"

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 10
	MaxIdleConnsPerHost int

	// Timeout bounds a whole request including the body.
	// Zero means no client-side limit; callers then bound requests by context.
	Timeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers.
	// Default: 30s
	ResponseHeaderTimeout time.Duration

	// DisableCompression requests raw bytes. Set for binary downloads.
	DisableCompression bool
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost:   10,
		Timeout:               30 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
}

// New creates an HTTP client with a pooled transport.
func New(opts Options) *http.Client {
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = 10
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          opts.MaxIdleConnsPerHost * 2,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
		DisableCompression:    opts.DisableCompression,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
	}
}

// CheckStatus returns nil for 2xx responses. Otherwise it returns a
// *domain.HTTPStatusError, wrapped in a RetryableError for 408, 429 and 5xx.
// The body is not closed.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	statusErr := &domain.HTTPStatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		statusErr.URL = redact(resp.Request.URL.String())
	}

	if IsTransientStatus(resp.StatusCode) {
		return domain.NewRetryableError(statusErr, ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	}
	return statusErr
}

// IsTransientStatus reports whether a status code is worth retrying.
func IsTransientStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= 500
}

// ClassifyError marks transport failures as retryable. Context cancellation
// by the caller is returned unchanged so it is never retried.
func ClassifyError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if domain.IsRetryable(err) {
		return err
	}

	var netErr net.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, domain.ErrUnexpectedEOF),
		isConnectionReset(err):
		return domain.NewRetryableError(err, 0)
	}
	return err
}

// Drain discards up to 64KiB of body so the connection can be reused, then closes it.
func Drain(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, body, 64*1024)
	_ = body.Close()
}

// ParseRetryAfter parses a Retry-After header as delta seconds or an HTTP date.
// It returns zero when the header is absent or unparseable.
func ParseRetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func isConnectionReset(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection refused")
}

// redact strips the query string, which may carry credentials.
func redact(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// Get issues a GET request with the given headers.
func Get(ctx context.Context, client *http.Client, rawURL string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, ClassifyError(ctx, fmt.Errorf("request failed: %w", err))
	}
	return resp, nil
}
