package domain

import "time"

// DownloadTask is one pending download. A task is owned by exactly one
// worker for its whole lifetime and is discarded after its terminal outcome.
type DownloadTask struct {
	Asset           AssetRecord
	DestinationPath string

	// Retry state. Attempt counts started attempts (1 after the first try);
	// NextDelay is the wait scheduled before the next attempt, zero when none
	// is scheduled.
	Attempt   int
	NextDelay time.Duration
	LastError error
}

// NewDownloadTask creates a task for asset that will be placed at destPath.
func NewDownloadTask(asset AssetRecord, destPath string) *DownloadTask {
	return &DownloadTask{
		Asset:           asset,
		DestinationPath: destPath,
	}
}

// AssetID is a convenience accessor for the task's asset ID.
func (t *DownloadTask) AssetID() string {
	return t.Asset.AssetID
}

// BeginAttempt records that a new attempt is starting.
func (t *DownloadTask) BeginAttempt() {
	t.Attempt++
	t.NextDelay = 0
}

// ScheduleRetry records a failed attempt and the delay before the next one.
func (t *DownloadTask) ScheduleRetry(err error, delay time.Duration) {
	t.LastError = err
	t.NextDelay = delay
}

// CanRetry reports whether another attempt fits within maxAttempts.
func (t *DownloadTask) CanRetry(maxAttempts int) bool {
	return t.Attempt < maxAttempts
}
