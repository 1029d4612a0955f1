package httpx

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassifiedError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ClassifiedError
		want string
	}{
		{"message only", &ClassifiedError{Message: "boom"}, "boom"},
		{"code and message", &ClassifiedError{Code: "timeout", Message: "too slow"}, "timeout: too slow"},
		{"status", &ClassifiedError{StatusCode: 503, Message: "unavailable"}, "[503] unavailable"},
		{"empty", &ClassifiedError{}, "unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorClassification(t *testing.T) {
	cause := errors.New("dial tcp 127.0.0.1:1: connect: connection refused")

	tests := []struct {
		name      string
		err       error
		check     func(error) bool
		retryable bool
	}{
		{"validation", NewValidationError("invalid_token", "bad"), IsValidationError, false},
		{"network", NewNetworkError(cause), IsNetworkError, true},
		{"timeout", NewTimeoutError(time.Second, cause), IsTimeoutError, true},
		{"transmission", NewTransmissionError("cancelled", cause), IsTransmissionError, false},
		{"wrapped network", fmt.Errorf("send: %w", NewNetworkError(cause)), IsNetworkError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("classification check failed for %T", tt.err)
			}
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
			if _, ok := AsClassifiedError(tt.err); !ok {
				t.Error("expected AsClassifiedError to find the base error")
			}
		})
	}
}

func TestNetworkError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewNetworkError(cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Error("fresh error should not match ErrRetriesExhausted")
	}
}

func TestMarkExhausted(t *testing.T) {
	err := NewTimeoutError(50*time.Millisecond, errors.New("deadline"))
	err.markExhausted(3)

	if !errors.Is(err, ErrRetriesExhausted) {
		t.Error("expected exhausted error to match ErrRetriesExhausted")
	}
	if err.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", err.Attempts)
	}
	want := "timeout: attempt timed out after 50ms (after 3 attempts)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestIsRetryable_Nil(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil error should not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain error should not be retryable")
	}
}

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		valid bool
	}{
		{"compact jws", "aGVhZGVy.cGF5bG9hZA.c2ln", true},
		{"base64url alphabet", "a-b_c.D-E_F.0-9_", true},
		{"empty", "", false},
		{"two segments", "aGVhZGVy.cGF5bG9hZA", false},
		{"four segments", "a.b.c.d", false},
		{"empty signature", "aGVhZGVy.cGF5bG9hZA.", false},
		{"padding", "aGVhZGVy.cGF5bG9hZA==.c2ln", false},
		{"standard base64 chars", "a+b.c/d.e", false},
		{"whitespace", "aGVh ZGVy.cGF5.c2ln", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateToken(tt.token)
			if tt.valid && err != nil {
				t.Errorf("ValidateToken(%q) unexpected error: %v", tt.token, err)
			}
			if !tt.valid && !IsValidationError(err) {
				t.Errorf("ValidateToken(%q) = %v, want ValidationError", tt.token, err)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url   string
		valid bool
	}{
		{"https://receiver.example.com/events", true},
		{"http://127.0.0.1:8080", true},
		{"/relative/path", false},
		{"receiver.example.com", false},
		{"https://", false},
		{"://missing-scheme", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.valid && err != nil {
				t.Errorf("ValidateURL(%q) unexpected error: %v", tt.url, err)
			}
			if !tt.valid && !IsValidationError(err) {
				t.Errorf("ValidateURL(%q) = %v, want ValidationError", tt.url, err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc", "Bearer abc"},
		{"Bearer abc", "Bearer abc"},
		{"bearer abc", "bearer abc"},
		{"Bearerabc", "Bearer Bearerabc"},
	}
	for _, tt := range tests {
		if got := BearerToken(tt.in); got != tt.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
