package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ssfkit/ssf-transmit-go/internal/testutil"
)

func newTestTransport(sleeper *testutil.SleepRecorder, obs Observer) *Transport {
	return NewTransport(Config{
		Observer: obs,
		Random:   func() float64 { return 0.5 },
		Sleep:    sleeper.Sleep,
	})
}

func testRequest(url string) *Request {
	return &Request{
		Token:         testutil.SampleToken,
		URL:           url,
		Timeout:       2 * time.Second,
		ParseResponse: true,
		Retry: RetryConfig{
			MaxAttempts:       3,
			RetryableStatuses: []int{429, 503},
			Backoff:           100 * time.Millisecond,
			MaxBackoff:        time.Second,
			BackoffMultiplier: 2,
		},
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	attempts []AttemptEvent
	retries  []time.Duration
}

func (r *recordingObserver) OnAttempt(_ context.Context, e AttemptEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, e)
}

func (r *recordingObserver) OnRetry(_ context.Context, _ int, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries = append(r.retries, delay)
}

func TestTransport_Transmit_Success(t *testing.T) {
	server := testutil.NewMockServer(t, testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       map[string]any{"accepted": true},
	})
	sleeper := &testutil.SleepRecorder{}

	result, err := newTestTransport(sleeper, nil).Transmit(context.Background(), testRequest(server.URL))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.Status != StatusSuccess {
		t.Errorf("Status = %q, want success", result.Status)
	}
	if result.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", result.StatusCode)
	}
	if result.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", result.Attempts)
	}
	body, ok := result.Body.(map[string]any)
	if !ok || body["accepted"] != true {
		t.Errorf("Body = %#v, want decoded JSON", result.Body)
	}
	if len(sleeper.Delays()) != 0 {
		t.Errorf("expected no delays, got %v", sleeper.Delays())
	}

	server.AssertRequestCount(t, 1)
	req := server.LastRequest()
	if req.Method != http.MethodPost {
		t.Errorf("Method = %s, want POST", req.Method)
	}
	if string(req.Body) != testutil.SampleToken {
		t.Errorf("Body = %q, want the raw token", req.Body)
	}
}

func TestTransport_Transmit_DefaultHeaders(t *testing.T) {
	server := testutil.NewMockServer(t)

	req := testRequest(server.URL)
	req.AuthToken = "receiver-secret"

	if _, err := newTestTransport(&testutil.SleepRecorder{}, nil).Transmit(context.Background(), req); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	server.AssertLastRequestHeader(t, "Content-Type", "application/secevent+jwt")
	server.AssertLastRequestHeader(t, "Accept", "application/json")
	server.AssertLastRequestHeader(t, "Authorization", "Bearer receiver-secret")

	ua := server.LastRequest().Headers.Get("User-Agent")
	if !strings.Contains(ua, "ssf-transmit-go") {
		t.Errorf("User-Agent should contain 'ssf-transmit-go', got %q", ua)
	}
}

func TestTransport_Transmit_HeaderPrecedence(t *testing.T) {
	server := testutil.NewMockServer(t)

	req := testRequest(server.URL)
	req.AuthToken = "Bearer already-prefixed"
	req.Headers = map[string]string{
		"User-Agent":   "custom-agent/2.0",
		"X-Request-ID": "req-42",
	}

	if _, err := newTestTransport(&testutil.SleepRecorder{}, nil).Transmit(context.Background(), req); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	server.AssertLastRequestHeader(t, "Authorization", "Bearer already-prefixed")
	server.AssertLastRequestHeader(t, "User-Agent", "custom-agent/2.0")
	server.AssertLastRequestHeader(t, "X-Request-ID", "req-42")

	req.Headers["Authorization"] = "Basic b3ZlcnJpZGU="
	if _, err := newTestTransport(&testutil.SleepRecorder{}, nil).Transmit(context.Background(), req); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	server.AssertLastRequestHeader(t, "Authorization", "Basic b3ZlcnJpZGU=")
}

func TestTransport_Transmit_InvalidTokenSendsNothing(t *testing.T) {
	server := testutil.NewMockServer(t)

	for _, token := range []string{"", "not-a-jwt", "a.b", "a.b.c.d", "a.b!.c"} {
		req := testRequest(server.URL)
		req.Token = token

		result, err := newTestTransport(&testutil.SleepRecorder{}, nil).Transmit(context.Background(), req)
		if result != nil {
			t.Errorf("token %q: expected nil result", token)
		}
		if !IsValidationError(err) {
			t.Errorf("token %q: expected ValidationError, got %v", token, err)
		}
		if IsRetryable(err) {
			t.Errorf("token %q: validation errors must not be retryable", token)
		}
	}

	server.AssertRequestCount(t, 0)
}

func TestTransport_Transmit_InvalidURL(t *testing.T) {
	req := testRequest("/events")

	_, err := newTestTransport(&testutil.SleepRecorder{}, nil).Transmit(context.Background(), req)
	if !IsValidationError(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestTransport_Transmit_RetriesThenSucceeds(t *testing.T) {
	server := testutil.NewMockServer(t,
		testutil.MockResponse{StatusCode: http.StatusServiceUnavailable},
		testutil.MockResponse{StatusCode: http.StatusTooManyRequests},
		testutil.MockResponse{StatusCode: http.StatusAccepted},
	)
	sleeper := &testutil.SleepRecorder{}
	obs := &recordingObserver{}

	result, err := newTestTransport(sleeper, obs).Transmit(context.Background(), testRequest(server.URL))
	if err != nil {
		t.Fatalf("Expected success after retries, got error: %v", err)
	}
	if result.Status != StatusSuccess || result.StatusCode != 202 {
		t.Errorf("result = %+v, want success 202", result)
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}

	server.AssertRequestCount(t, 3)
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	assertDelays(t, sleeper.Delays(), want)

	if len(obs.attempts) != 3 || len(obs.retries) != 2 {
		t.Errorf("observer saw %d attempts and %d retries, want 3 and 2", len(obs.attempts), len(obs.retries))
	}
	if !obs.attempts[2].Accepted {
		t.Error("expected final attempt to be observed as accepted")
	}
}

func TestTransport_Transmit_ExhaustedRetryableStatus(t *testing.T) {
	server := testutil.NewMockServer(t, testutil.MockResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       "try later",
	})
	sleeper := &testutil.SleepRecorder{}

	req := testRequest(server.URL)
	req.Retry.MaxAttempts = 4

	result, err := newTestTransport(sleeper, nil).Transmit(context.Background(), req)
	if err != nil {
		t.Fatalf("Exhausted HTTP failures should not error, got %v", err)
	}
	if result.Status != StatusFailed || result.StatusCode != 503 {
		t.Errorf("result = %+v, want failed 503", result)
	}
	if !result.Retryable {
		t.Error("expected exhausted result to be retryable")
	}
	if result.Body != "try later" {
		t.Errorf("Body = %#v, want raw text", result.Body)
	}
	if result.Error == "" {
		t.Error("expected an error description on failed result")
	}
	if result.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", result.Attempts)
	}

	server.AssertRequestCount(t, 4)
	assertDelays(t, sleeper.Delays(), []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	})
}

func TestTransport_Transmit_NonRetryableStatus(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404, 500} {
		server := testutil.NewMockServer(t, testutil.MockResponse{
			StatusCode: status,
			Body:       map[string]any{"err": "invalid_request"},
		})
		sleeper := &testutil.SleepRecorder{}

		result, err := newTestTransport(sleeper, nil).Transmit(context.Background(), testRequest(server.URL))
		if err != nil {
			t.Fatalf("status %d: unexpected error %v", status, err)
		}
		if result.Status != StatusFailed || result.StatusCode != status {
			t.Errorf("status %d: result = %+v", status, result)
		}
		if result.Retryable {
			t.Errorf("status %d: expected retryable=false", status)
		}
		if body, ok := result.Body.(map[string]any); !ok || body["err"] != "invalid_request" {
			t.Errorf("status %d: Body = %#v", status, result.Body)
		}
		server.AssertRequestCount(t, 1)
		if len(sleeper.Delays()) != 0 {
			t.Errorf("status %d: expected no delays", status)
		}
	}
}

func TestTransport_Transmit_RetryAfterHint(t *testing.T) {
	server := testutil.NewMockServer(t,
		testutil.MockResponse{StatusCode: 429, Headers: map[string]string{"Retry-After": "2"}},
		testutil.MockResponse{StatusCode: 200},
	)
	sleeper := &testutil.SleepRecorder{}

	req := testRequest(server.URL)
	req.Retry.MaxBackoff = 10 * time.Second

	if _, err := newTestTransport(sleeper, nil).Transmit(context.Background(), req); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	assertDelays(t, sleeper.Delays(), []time.Duration{2 * time.Second})
}

func TestTransport_Transmit_RetryAfterCappedByMaxBackoff(t *testing.T) {
	server := testutil.NewMockServer(t,
		testutil.MockResponse{StatusCode: 503, Headers: map[string]string{"Retry-After": "120"}},
		testutil.MockResponse{StatusCode: 200},
	)
	sleeper := &testutil.SleepRecorder{}

	if _, err := newTestTransport(sleeper, nil).Transmit(context.Background(), testRequest(server.URL)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	assertDelays(t, sleeper.Delays(), []time.Duration{time.Second})
}

func TestTransport_Transmit_ConnectionRefused(t *testing.T) {
	sleeper := &testutil.SleepRecorder{}
	obs := &recordingObserver{}

	req := testRequest("http://127.0.0.1:1/events") // port 1 should refuse connections

	result, err := newTestTransport(sleeper, obs).Transmit(context.Background(), req)
	if result != nil {
		t.Fatalf("expected nil result, got %+v", result)
	}
	if !IsNetworkError(err) {
		t.Fatalf("expected NetworkError, got %T: %v", err, err)
	}
	if !IsRetryable(err) {
		t.Error("expected network error to be retryable")
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Error("expected error to match ErrRetriesExhausted")
	}
	if base, _ := AsClassifiedError(err); base.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", base.Attempts)
	}
	if len(obs.attempts) != 3 {
		t.Errorf("observer saw %d attempts, want 3", len(obs.attempts))
	}
	assertDelays(t, sleeper.Delays(), []time.Duration{100 * time.Millisecond, 200 * time.Millisecond})
}

func TestTransport_Transmit_Timeout(t *testing.T) {
	server := testutil.NewMockServer(t, testutil.MockResponse{
		StatusCode: http.StatusOK,
		Delay:      500 * time.Millisecond,
	})

	req := testRequest(server.URL)
	req.Timeout = 50 * time.Millisecond
	req.Retry.MaxAttempts = 2

	_, err := newTestTransport(&testutil.SleepRecorder{}, nil).Transmit(context.Background(), req)
	if !IsTimeoutError(err) {
		t.Fatalf("expected TimeoutError, got %T: %v", err, err)
	}
	if !IsRetryable(err) {
		t.Error("expected timeout error to be retryable")
	}
	server.AssertRequestCount(t, 2)
}

func TestTransport_Transmit_LastOutcomeWins(t *testing.T) {
	// A response followed by a transport failure on the final attempt raises
	// the transport failure.
	server := testutil.NewMockServer(t,
		testutil.MockResponse{StatusCode: 503},
		testutil.MockResponse{StatusCode: 200, Delay: 500 * time.Millisecond},
	)

	req := testRequest(server.URL)
	req.Timeout = 50 * time.Millisecond
	req.Retry.MaxAttempts = 2

	result, err := newTestTransport(&testutil.SleepRecorder{}, nil).Transmit(context.Background(), req)
	if result != nil || !IsTimeoutError(err) {
		t.Fatalf("expected TimeoutError and nil result, got %+v, %v", result, err)
	}
}

func TestTransport_Transmit_CancelledDuringDelay(t *testing.T) {
	server := testutil.NewMockServer(t, testutil.MockResponse{StatusCode: 503})

	ctx, cancel := context.WithCancel(context.Background())
	transport := NewTransport(Config{
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		},
	})

	_, err := transport.Transmit(ctx, testRequest(server.URL))
	if !IsTransmissionError(err) {
		t.Fatalf("expected TransmissionError, got %T: %v", err, err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("expected error to wrap context.Canceled")
	}
	if IsRetryable(err) {
		t.Error("cancellation must not be retryable")
	}
	server.AssertRequestCount(t, 1)
}

func TestTransport_Transmit_AcceptPolicy(t *testing.T) {
	server := testutil.NewMockServer(t, testutil.MockResponse{StatusCode: http.StatusConflict})

	req := testRequest(server.URL)
	req.Accept = AcceptPolicy{Codes: []int{http.StatusConflict}}

	result, err := newTestTransport(&testutil.SleepRecorder{}, nil).Transmit(context.Background(), req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Status != StatusSuccess {
		t.Errorf("Status = %q, want success for an accepted 409", result.Status)
	}
}

func TestTransport_Transmit_RawResponse(t *testing.T) {
	server := testutil.NewMockServer(t, testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       map[string]any{"ok": true},
	})

	req := testRequest(server.URL)
	req.ParseResponse = false

	result, err := newTestTransport(&testutil.SleepRecorder{}, nil).Transmit(context.Background(), req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if s, ok := result.Body.(string); !ok || !strings.Contains(s, `"ok":true`) {
		t.Errorf("Body = %#v, want raw JSON text", result.Body)
	}
}

func TestTransport_Transmit_InvalidJSONKeepsText(t *testing.T) {
	server := testutil.NewMockServer(t, testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       "{not json",
		Headers:    map[string]string{"Content-Type": "application/json"},
	})

	result, err := newTestTransport(&testutil.SleepRecorder{}, nil).Transmit(context.Background(), testRequest(server.URL))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Body != "{not json" {
		t.Errorf("Body = %#v, want raw text", result.Body)
	}
}

func TestAcceptPolicy_Accepts(t *testing.T) {
	tests := []struct {
		name   string
		policy AcceptPolicy
		status int
		want   bool
	}{
		{"default 200", AcceptPolicy{}, 200, true},
		{"default 299", AcceptPolicy{}, 299, true},
		{"default 300", AcceptPolicy{}, 300, false},
		{"default 199", AcceptPolicy{}, 199, false},
		{"widened range", AcceptPolicy{Max: 400}, 304, true},
		{"explicit code", AcceptPolicy{Codes: []int{409}}, 409, true},
		{"explicit code keeps range", AcceptPolicy{Codes: []int{409}}, 204, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Accepts(tt.status); got != tt.want {
				t.Errorf("Accepts(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func assertDelays(t *testing.T, got, want []time.Duration) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("delays = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
