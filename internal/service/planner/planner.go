// Package planner turns resolved assets into pending download tasks.
package planner

import (
	"sort"

	"go.uber.org/zap"

	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
	"github.com/vertextoedge/book-cover-fetcher/internal/port"
)

// Planner diffs resolved assets against the completed set
type Planner struct {
	fs     port.FileSystem
	logger *zap.Logger
}

// New creates a Planner placing files in fs's output directory.
func New(fs port.FileSystem, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{fs: fs, logger: logger}
}

// Plan returns one task per incomplete asset, ordered by SequenceIndex.
// Assets in completed are skipped and repeated asset ids keep only their
// first occurrence. An empty result means there is nothing to do.
func (p *Planner) Plan(assets []domain.AssetRecord, completed domain.CompletedSet) []*domain.DownloadTask {
	ordered := make([]domain.AssetRecord, len(assets))
	copy(ordered, assets)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SequenceIndex < ordered[j].SequenceIndex
	})

	tasks := make([]*domain.DownloadTask, 0, len(ordered))
	seen := make(map[string]struct{}, len(ordered))
	for _, asset := range ordered {
		if _, dup := seen[asset.AssetID]; dup {
			p.logger.Warn("duplicate asset in resolution, ignoring", zap.String("asset_id", asset.AssetID))
			continue
		}
		seen[asset.AssetID] = struct{}{}

		if completed.Has(asset.AssetID) {
			p.logger.Debug("asset already complete, skipping", zap.String("asset_id", asset.AssetID))
			continue
		}
		tasks = append(tasks, domain.NewDownloadTask(asset, p.fs.DestinationPath(asset.FileName())))
	}
	return tasks
}
