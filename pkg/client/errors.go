package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrNotFound is returned when the upstream reports 404 for a record.
	// It is never retried and is not counted as an upstream failure.
	ErrNotFound = errors.New("record not found")

	// ErrUpstreamUnavailable is returned when all retry attempts are exhausted.
	// It wraps the last observed attempt error.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrRejected is returned when the sink refuses a batch with a
	// non-retryable client error.
	ErrRejected = errors.New("batch rejected")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents non-retryable 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents retryable 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents connection and timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// UpstreamError carries the status and classification of a failed attempt.
type UpstreamError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// retryableStatus reports whether a response status warrants another attempt.
// Only the transient server error statuses qualify; everything else fails fast.
func retryableStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// isRetryable determines if an attempt error should be retried based on its
// classification. Network and transient server errors retry, client errors
// and decode failures do not.
func isRetryable(err error) bool {
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		return false
	}
	switch ue.ErrorClass {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
