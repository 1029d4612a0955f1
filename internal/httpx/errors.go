package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrRetriesExhausted matches, via errors.Is, any classified error returned
// because the attempt budget ran out.
var ErrRetriesExhausted = errors.New("ssf: retries exhausted")

// ClassifiedError is the base type shared by all classified transmission errors.
type ClassifiedError struct {
	StatusCode int         `json:"status_code,omitempty"`
	Code       string      `json:"code,omitempty"`
	Message    string      `json:"message,omitempty"`
	Body       []byte      `json:"-"`
	Headers    http.Header `json:"-"`
	Attempts   int         `json:"attempts,omitempty"`
	Retryable  bool        `json:"retryable"`
	Err        error       `json:"-"`

	exhausted bool
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("[%d] %s", e.StatusCode, msg)
	}
	if e.exhausted {
		msg = fmt.Sprintf("%s (after %d attempts)", msg, e.Attempts)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Is reports whether the error was produced by an exhausted retry budget.
func (e *ClassifiedError) Is(target error) bool {
	return target == ErrRetriesExhausted && e.exhausted
}

// IsRetryable returns true if the error is retryable.
func (e *ClassifiedError) IsRetryable() bool {
	return e.Retryable
}

// markExhausted records that no attempts remain after attempts tries.
func (e *ClassifiedError) markExhausted(attempts int) {
	e.Attempts = attempts
	e.exhausted = true
}

// ValidationError reports a malformed token or destination. It is raised
// before any network I/O and is never retryable.
type ValidationError struct{ *ClassifiedError }

// Unwrap returns the base error.
func (e *ValidationError) Unwrap() error { return e.ClassifiedError }

// IsRetryable always returns false for validation errors.
func (e *ValidationError) IsRetryable() bool { return false }

// TimeoutError reports an attempt that exceeded its deadline.
type TimeoutError struct {
	*ClassifiedError
	Timeout time.Duration
}

// Unwrap returns the base error.
func (e *TimeoutError) Unwrap() error { return e.ClassifiedError }

// IsRetryable always returns true for timeout errors.
func (e *TimeoutError) IsRetryable() bool { return true }

// NetworkError reports a transport-level failure.
type NetworkError struct{ *ClassifiedError }

// Unwrap returns the base error.
func (e *NetworkError) Unwrap() error { return e.ClassifiedError }

// IsRetryable always returns true for network errors.
func (e *NetworkError) IsRetryable() bool { return true }

// TransmissionError is a terminal failure that fits no other class, such as a
// cancelled caller context or a request that could not be built.
type TransmissionError struct{ *ClassifiedError }

// Unwrap returns the base error.
func (e *TransmissionError) Unwrap() error { return e.ClassifiedError }

// NewValidationError creates a validation error with the given message.
func NewValidationError(code, message string) *ValidationError {
	return &ValidationError{
		ClassifiedError: &ClassifiedError{Code: code, Message: message},
	}
}

// NewNetworkError creates a new network error.
func NewNetworkError(err error) *NetworkError {
	return &NetworkError{
		ClassifiedError: &ClassifiedError{
			Code:      "network_error",
			Message:   err.Error(),
			Retryable: true,
			Err:       err,
		},
	}
}

// NewTimeoutError creates a new timeout error.
func NewTimeoutError(timeout time.Duration, err error) *TimeoutError {
	return &TimeoutError{
		ClassifiedError: &ClassifiedError{
			Code:      "timeout",
			Message:   fmt.Sprintf("attempt timed out after %v", timeout),
			Retryable: true,
			Err:       err,
		},
		Timeout: timeout,
	}
}

// NewTransmissionError creates a non-retryable terminal error.
func NewTransmissionError(message string, err error) *TransmissionError {
	if err != nil {
		message = message + ": " + err.Error()
	}
	return &TransmissionError{
		ClassifiedError: &ClassifiedError{
			Code:    "transmission_failed",
			Message: message,
			Err:     err,
		},
	}
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	type retryable interface {
		IsRetryable() bool
	}
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// IsValidationError returns true if the error is a validation error.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsTimeoutError returns true if the error is a timeout error.
func IsTimeoutError(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// IsNetworkError returns true if the error is a network error.
func IsNetworkError(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

// IsTransmissionError returns true if the error is a terminal transmission error.
func IsTransmissionError(err error) bool {
	var target *TransmissionError
	return errors.As(err, &target)
}

// AsClassifiedError extracts the base error.
func AsClassifiedError(err error) (*ClassifiedError, bool) {
	var base *ClassifiedError
	if errors.As(err, &base) {
		return base, true
	}
	return nil, false
}
