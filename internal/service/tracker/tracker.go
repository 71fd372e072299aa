// Package tracker serializes resume record writes through one goroutine.
package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
	"github.com/vertextoedge/book-cover-fetcher/internal/port"
)

type recordRequest struct {
	entry domain.ResumeEntry
	reply chan error
}

// Tracker is the only writer of a ResumeStore during a run.
type Tracker struct {
	store  port.ResumeStore
	runID  string
	logger *zap.Logger
	now    func() time.Time

	requests  chan recordRequest
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New starts the recorder goroutine. Close must be called to stop it.
func New(store port.ResumeStore, runID string, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		store:    store,
		runID:    runID,
		logger:   logger,
		now:      time.Now,
		requests: make(chan recordRequest),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go t.loop()
	return t
}

func (t *Tracker) loop() {
	defer close(t.done)
	for {
		select {
		case req := <-t.requests:
			// A request that reached the loop is always written and answered,
			// whatever happens to the caller's context meanwhile.
			err := t.store.Record(context.Background(), req.entry)
			if err != nil {
				t.logger.Error("failed to record completion",
					zap.String("asset_id", req.entry.AssetID),
					zap.Error(err))
			} else {
				t.logger.Debug("recorded completion",
					zap.String("asset_id", req.entry.AssetID),
					zap.String("file_name", req.entry.FileName))
			}
			req.reply <- err
		case <-t.quit:
			return
		}
	}
}

// Load returns the persisted resume record.
func (t *Tracker) Load(ctx context.Context) (*domain.ResumeRecord, error) {
	return t.store.Load(ctx)
}

// RecordSuccess durably records a placed file before returning. It must only
// be called after the file is atomically in place. RunID and CompletedAt are
// filled in when empty.
func (t *Tracker) RecordSuccess(ctx context.Context, entry domain.ResumeEntry) error {
	if entry.RunID == "" {
		entry.RunID = t.runID
	}
	if entry.CompletedAt.IsZero() {
		entry.CompletedAt = t.now().UTC()
	}

	req := recordRequest{entry: entry, reply: make(chan error, 1)}
	select {
	case t.requests <- req:
	case <-t.quit:
		return domain.ErrStoreClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.reply
}

// Close stops the recorder goroutine and closes the store. Safe to call more
// than once.
func (t *Tracker) Close() error {
	t.closeOnce.Do(func() {
		close(t.quit)
		<-t.done
		t.closeErr = t.store.Close()
	})
	return t.closeErr
}
