package errors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrProviderUnavailable = errors.New("metrics provider unavailable")
	ErrProcessVanished     = errors.New("process vanished")
	ErrBackendUnreachable  = errors.New("analysis backend unreachable")
	ErrTruncatedResponse   = errors.New("truncated response")
	ErrMalformedFragment   = errors.New("malformed response fragment")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeProvider  ErrorType = "provider"
	ErrorTypeBackend   ErrorType = "backend"
	ErrorTypeTruncated ErrorType = "truncated"
	ErrorTypeMalformed ErrorType = "malformed"
	ErrorTypeAPI       ErrorType = "api"
	ErrorTypeTimeout   ErrorType = "timeout"
)

// AnalysisError is a structured error for sampling and analysis operations
type AnalysisError struct {
	Type       ErrorType
	Op         string // Operation that failed (e.g., "collect_sample", "generate")
	Model      string // Model name if applicable
	Err        error  // Underlying error
	StatusCode int    // HTTP status code if applicable
	Timestamp  time.Time
}

func (e *AnalysisError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s failed for model %s: %v", e.Op, e.Model, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface. A malformed fragment is reported as a
// truncated response as well.
func (e *AnalysisError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrProviderUnavailable:
		return e.Type == ErrorTypeProvider
	case ErrBackendUnreachable:
		return e.Type == ErrorTypeBackend
	case ErrTruncatedResponse:
		return e.Type == ErrorTypeTruncated || e.Type == ErrorTypeMalformed
	case ErrMalformedFragment:
		return e.Type == ErrorTypeMalformed
	}

	return errors.Is(e.Err, target)
}

// NewAnalysisError creates a new AnalysisError
func NewAnalysisError(errorType ErrorType, op string, err error) *AnalysisError {
	return &AnalysisError{
		Type:      errorType,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// WithModel adds the model name to the error
func (e *AnalysisError) WithModel(model string) *AnalysisError {
	e.Model = model
	return e
}

// WithStatusCode adds HTTP status code to the error
func (e *AnalysisError) WithStatusCode(code int) *AnalysisError {
	e.StatusCode = code
	return e
}

// Helper functions

// WrapProviderError marks err as a metrics provider failure
func WrapProviderError(op string, err error) error {
	return NewAnalysisError(ErrorTypeProvider, op, err)
}

// WrapBackendError marks err as a failure to reach the analysis backend
func WrapBackendError(op, model string, err error) error {
	return NewAnalysisError(ErrorTypeBackend, op, err).WithModel(model)
}

// WrapAPIError wraps a non-success backend reply
func WrapAPIError(op, model string, err error, statusCode int) error {
	return NewAnalysisError(ErrorTypeAPI, op, err).WithModel(model).WithStatusCode(statusCode)
}

// Truncated reports a stream that ended before its terminal fragment
func Truncated(op string, err error) error {
	if err == nil {
		err = ErrTruncatedResponse
	}
	return NewAnalysisError(ErrorTypeTruncated, op, err)
}

// Malformed reports a fragment of unexpected shape
func Malformed(op string, err error) error {
	if err == nil {
		err = ErrMalformedFragment
	}
	return NewAnalysisError(ErrorTypeMalformed, op, err)
}

// Kind returns a short label for err suitable for metrics and report lines
func Kind(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return string(ErrorTypeTimeout)
	}
	var aErr *AnalysisError
	if errors.As(err, &aErr) {
		return string(aErr.Type)
	}
	switch {
	case errors.Is(err, ErrProviderUnavailable):
		return string(ErrorTypeProvider)
	case errors.Is(err, ErrBackendUnreachable):
		return string(ErrorTypeBackend)
	case errors.Is(err, ErrMalformedFragment):
		return string(ErrorTypeMalformed)
	case errors.Is(err, ErrTruncatedResponse):
		return string(ErrorTypeTruncated)
	}
	return "internal"
}
