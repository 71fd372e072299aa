package domain

// RunSummary aggregates the outcome of one pipeline run.
type RunSummary struct {
	Resolved   int
	Skipped    int // already complete before the run
	Planned    int
	Succeeded  int
	Failed     int
	Unrecorded int
	Cancelled  int
	Bytes      int64
}

// Add folds one task outcome into the summary.
func (s *RunSummary) Add(o TaskOutcome) {
	switch o.Status {
	case OutcomeSucceeded:
		s.Succeeded++
		s.Bytes += o.BytesWritten
	case OutcomeFailed:
		s.Failed++
	case OutcomeUnrecorded:
		s.Unrecorded++
		s.Bytes += o.BytesWritten
	case OutcomeCancelled:
		s.Cancelled++
	}
}

// Complete reports whether every planned task succeeded.
func (s *RunSummary) Complete() bool {
	return s.Failed == 0 && s.Unrecorded == 0 && s.Cancelled == 0
}
