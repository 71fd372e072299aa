package downloader

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/book-cover-fetcher/internal/logger"
	"github.com/vertextoedge/book-cover-fetcher/internal/util/throttle"
)

// progressReader wraps a reader to report download progress
type progressReader struct {
	reader    io.Reader
	total     int64
	bytesRead int64
	throttle  *throttle.Throttle
	logger    *zap.Logger
}

func newProgressReader(r io.Reader, total int64, interval time.Duration, log *zap.Logger) *progressReader {
	t := throttle.New(interval)
	// The first Allow always passes; spend it so the first line comes after one interval.
	t.Allow()
	return &progressReader{
		reader:   r,
		total:    total,
		throttle: t,
		logger:   log,
	}
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.bytesRead += int64(n)

	if ok, _ := r.throttle.Allow(); ok {
		r.logger.Info("download progress",
			logger.Bytes("downloaded", r.bytesRead),
			logger.Bytes("total", r.total))
	}

	return n, err
}
