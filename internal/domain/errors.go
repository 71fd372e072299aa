package domain

import (
	"errors"
	"fmt"
	"time"
)

// Common domain errors
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientSpace = errors.New("insufficient space")
	ErrInterrupted       = errors.New("interrupted before dispatch")

	// Transfer errors
	ErrEmptyBody     = errors.New("empty response body")
	ErrSizeMismatch  = errors.New("transferred size does not match content length")
	ErrMalformedURL  = errors.New("malformed image url")
	ErrUnexpectedEOF = errors.New("transfer ended early")

	// ErrMalformedResponse marks a remote payload that could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")

	// Resume record errors
	ErrRecordConflict = errors.New("resume record already holds a different value for this asset")
	ErrStoreClosed    = errors.New("resume store is closed")
)

// ResolutionKind classifies why an asset list could not be resolved.
type ResolutionKind string

const (
	ResolutionNotFound           ResolutionKind = "not_found"
	ResolutionServiceUnavailable ResolutionKind = "service_unavailable"
	ResolutionMalformedResponse  ResolutionKind = "malformed_response"
	ResolutionUnauthorized       ResolutionKind = "unauthorized"
)

// ResolutionError is returned by the resolver. It is fatal to the run.
type ResolutionError struct {
	Kind ResolutionKind

	// AssetID is set when the failure concerns a single asset record.
	AssetID string
	Err     error
}

// Error returns the error message
func (e *ResolutionError) Error() string {
	msg := "resolve collection: " + string(e.Kind)
	if e.AssetID != "" {
		msg += " (asset " + e.AssetID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// NewResolutionError creates a ResolutionError of the given kind.
func NewResolutionError(kind ResolutionKind, err error) *ResolutionError {
	return &ResolutionError{Kind: kind, Err: err}
}

// IsResolutionKind reports whether err is a ResolutionError of kind.
func IsResolutionKind(err error, kind ResolutionKind) bool {
	var re *ResolutionError
	return errors.As(err, &re) && re.Kind == kind
}

// RetryableError represents an error that should trigger a retry.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

// Error returns the error message
func (e *RetryableError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "retryable error"
}

// Unwrap returns the underlying error
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error, retryAfter time.Duration) *RetryableError {
	return &RetryableError{Err: err, RetryAfter: retryAfter}
}

// IsRetryable returns true if the error should be retried
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// GetRetryAfter returns the retry duration if the error is retryable
func GetRetryAfter(err error) (time.Duration, bool) {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.RetryAfter, true
	}
	return 0, false
}

// HTTPStatusError is a non-success HTTP status from a remote service.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPStatusError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("unexpected status %s from %s", e.Status, e.URL)
	}
	return "unexpected status " + e.Status
}

// StatusCode extracts the HTTP status code carried by err, if any.
func StatusCode(err error) (int, bool) {
	var se *HTTPStatusError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	return 0, false
}
