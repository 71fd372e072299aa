package port

import (
	"context"
	"io"
)

// ImageResponse is an open image transfer.
type ImageResponse struct {
	Body io.ReadCloser

	// ContentLength is -1 when the server did not announce it.
	ContentLength int64
	ContentType   string
}

// ImageFetcher opens a single GET transfer for an image URL.
//
// Transient failures (network errors, timeouts, 408, 429, 5xx) are returned as
// *domain.RetryableError; everything else is permanent.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (*ImageResponse, error)
}
