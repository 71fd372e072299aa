package domain

import "fmt"

// OutcomeStatus is the terminal state of a download task within one run.
type OutcomeStatus string

const (
	// OutcomeSucceeded: the file is atomically in place and recorded.
	OutcomeSucceeded OutcomeStatus = "succeeded"

	// OutcomeFailed: the task gave up after a permanent error or exhausted retries.
	OutcomeFailed OutcomeStatus = "failed"

	// OutcomeUnrecorded: the file was placed but the resume record write failed.
	// The next run treats the asset as incomplete and downloads it again.
	OutcomeUnrecorded OutcomeStatus = "unrecorded"

	// OutcomeCancelled: the task was never dispatched because the run was interrupted.
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// TaskOutcome reports what happened to one DownloadTask.
type TaskOutcome struct {
	AssetID string
	Status  OutcomeStatus

	// BytesWritten and SHA256 describe the placed file for succeeded and
	// unrecorded outcomes.
	BytesWritten int64
	SHA256       string

	// Attempts is the number of attempts started.
	Attempts int

	// AttemptsExhausted is true when a failure came from running out of
	// retries rather than from a permanent error.
	AttemptsExhausted bool

	// Err is the reason for a non-successful outcome.
	Err error
}

// Succeeded creates a successful outcome.
func Succeeded(assetID string, bytesWritten int64, sha256 string, attempts int) TaskOutcome {
	return TaskOutcome{
		AssetID:      assetID,
		Status:       OutcomeSucceeded,
		BytesWritten: bytesWritten,
		SHA256:       sha256,
		Attempts:     attempts,
	}
}

// Failed creates a failed outcome.
func Failed(assetID string, err error, attempts int, exhausted bool) TaskOutcome {
	return TaskOutcome{
		AssetID:           assetID,
		Status:            OutcomeFailed,
		Attempts:          attempts,
		AttemptsExhausted: exhausted,
		Err:               err,
	}
}

// Unrecorded creates an outcome for a placed but unrecorded file.
func Unrecorded(assetID string, bytesWritten int64, sha256 string, attempts int, err error) TaskOutcome {
	return TaskOutcome{
		AssetID:      assetID,
		Status:       OutcomeUnrecorded,
		BytesWritten: bytesWritten,
		SHA256:       sha256,
		Attempts:     attempts,
		Err:          err,
	}
}

// Cancelled creates an outcome for a task that was never dispatched.
func Cancelled(assetID string) TaskOutcome {
	return TaskOutcome{
		AssetID: assetID,
		Status:  OutcomeCancelled,
		Err:     ErrInterrupted,
	}
}

func (o TaskOutcome) String() string {
	switch o.Status {
	case OutcomeSucceeded:
		return fmt.Sprintf("%s: succeeded (%d bytes, %d attempts)", o.AssetID, o.BytesWritten, o.Attempts)
	case OutcomeFailed:
		if o.AttemptsExhausted {
			return fmt.Sprintf("%s: failed after %d attempts: %v", o.AssetID, o.Attempts, o.Err)
		}
		return fmt.Sprintf("%s: failed: %v", o.AssetID, o.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", o.AssetID, o.Status, o.Err)
	}
}
