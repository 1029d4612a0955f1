package ssf

import (
	"errors"

	"github.com/ssfkit/ssf-transmit-go/internal/httpx"
)

// Classified transmission errors. Every error returned by Transmit and Send
// for a failed delivery is one of these.
type (
	// ClassifiedError is the base error type embedded by all classes.
	ClassifiedError = httpx.ClassifiedError
	// ValidationError reports a malformed token or URL. Nothing was sent.
	ValidationError = httpx.ValidationError
	// TimeoutError reports an attempt that exceeded its deadline.
	TimeoutError = httpx.TimeoutError
	// NetworkError reports a transport-level failure.
	NetworkError = httpx.NetworkError
	// TransmissionError reports a terminal failure of any other kind.
	TransmissionError = httpx.TransmissionError
)

// Sentinel errors
var (
	// ErrRetriesExhausted matches errors returned after the last attempt
	// failed without a receiver response.
	ErrRetriesExhausted = httpx.ErrRetriesExhausted

	// ErrNoAddressResolver is returned by Send without an AddressResolver.
	ErrNoAddressResolver = errors.New("ssf: no address resolver configured")

	// ErrNoSigner is returned by Send without a Signer.
	ErrNoSigner = errors.New("ssf: no signer configured")

	// ErrInvalidEvent is returned for events that cannot be turned into a SET.
	ErrInvalidEvent = errors.New("ssf: invalid event")

	// ErrClientClosed is returned by a closed client.
	ErrClientClosed = errors.New("ssf: client is closed")
)

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	return httpx.IsRetryable(err)
}

// IsValidationError returns true if the error is a validation error.
func IsValidationError(err error) bool {
	return httpx.IsValidationError(err)
}

// IsTimeoutError returns true if the error is a timeout error.
func IsTimeoutError(err error) bool {
	return httpx.IsTimeoutError(err)
}

// IsNetworkError returns true if the error is a network error.
func IsNetworkError(err error) bool {
	return httpx.IsNetworkError(err)
}

// IsTransmissionError returns true if the error is a terminal transmission error.
func IsTransmissionError(err error) bool {
	return httpx.IsTransmissionError(err)
}

// AsClassifiedError extracts the base error.
func AsClassifiedError(err error) (*ClassifiedError, bool) {
	return httpx.AsClassifiedError(err)
}

// ValidateToken checks that token has the shape of a compact JWS.
func ValidateToken(token string) error {
	return httpx.ValidateToken(token)
}
