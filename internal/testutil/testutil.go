// Package testutil provides a scripted SET receiver for tests.
package testutil

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// SampleToken is a syntactically valid compact JWS used across tests.
const SampleToken = "eyJhbGciOiJSUzI1NiIsInR5cCI6InNlY2V2ZW50K2p3dCJ9." +
	"eyJpc3MiOiJodHRwczovL2lkcC5leGFtcGxlLmNvbSIsImlhdCI6MTcwMDAwMDAwMH0." +
	"c2lnbmF0dXJl"

// MockResponse represents a mock HTTP response.
type MockResponse struct {
	StatusCode int
	Body       any
	Headers    map[string]string
	// Delay holds the response back, for exercising attempt timeouts.
	Delay time.Duration
}

// RecordedRequest represents a recorded HTTP request.
type RecordedRequest struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

// MockServer is a receiver that answers with scripted responses in order,
// repeating the last one once the script runs out.
type MockServer struct {
	*httptest.Server
	mu       sync.Mutex
	script   []MockResponse
	requests []RecordedRequest
}

// NewMockServer creates a receiver answering with responses. With no
// responses it answers 202 Accepted.
func NewMockServer(t *testing.T, responses ...MockResponse) *MockServer {
	t.Helper()

	if len(responses) == 0 {
		responses = []MockResponse{{StatusCode: http.StatusAccepted}}
	}
	ms := &MockServer{script: responses}

	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()

		ms.mu.Lock()
		n := len(ms.requests)
		ms.requests = append(ms.requests, RecordedRequest{
			Method:  r.Method,
			Path:    r.URL.Path,
			Headers: r.Header.Clone(),
			Body:    body,
		})
		resp := ms.script[min(n, len(ms.script)-1)]
		ms.mu.Unlock()

		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}
		writeResponse(w, resp)
	}))

	t.Cleanup(func() {
		ms.Close()
	})

	return ms
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	switch body := resp.Body.(type) {
	case nil:
		w.WriteHeader(resp.StatusCode)
	case string:
		w.WriteHeader(resp.StatusCode)
		io.WriteString(w, body)
	default:
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(resp.StatusCode)
		json.NewEncoder(w).Encode(body)
	}
}

// GetRequests returns all recorded requests.
func (ms *MockServer) GetRequests() []RecordedRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]RecordedRequest{}, ms.requests...)
}

// LastRequest returns the last recorded request.
func (ms *MockServer) LastRequest() *RecordedRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if len(ms.requests) == 0 {
		return nil
	}
	return &ms.requests[len(ms.requests)-1]
}

// AssertRequestCount asserts that a specific number of requests were made.
func (ms *MockServer) AssertRequestCount(t *testing.T, expected int) {
	t.Helper()
	ms.mu.Lock()
	actual := len(ms.requests)
	ms.mu.Unlock()

	if actual != expected {
		t.Errorf("expected %d requests, got %d", expected, actual)
	}
}

// AssertLastRequestHeader asserts a header of the last request.
func (ms *MockServer) AssertLastRequestHeader(t *testing.T, key, expected string) {
	t.Helper()
	req := ms.LastRequest()
	if req == nil {
		t.Error("no requests recorded")
		return
	}
	actual := req.Headers.Get(key)
	if actual != expected {
		t.Errorf("expected header %s=%s, got %s", key, expected, actual)
	}
}

// SleepRecorder replaces the transport sleep and records requested delays.
type SleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

// Sleep records d and returns immediately.
func (s *SleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

// Delays returns the recorded delays in order.
func (s *SleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration{}, s.delays...)
}
