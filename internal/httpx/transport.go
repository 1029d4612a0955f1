// Package httpx delivers security event tokens over HTTP with retry, timeout,
// and error classification.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ssfkit/ssf-transmit-go/internal/version"
)

const (
	// ContentTypeSecEvent is the media type of a compact security event token.
	ContentTypeSecEvent = "application/secevent+jwt"

	// DefaultTimeout bounds a single attempt when the request sets none.
	DefaultTimeout = 30 * time.Second

	maxResponseBody = 1 << 20 // 1MiB cap on buffered response bodies
)

// Transport performs SET deliveries. A Transport holds no per-delivery state
// and is safe for concurrent use.
type Transport struct {
	client    *http.Client
	userAgent string
	logger    Logger
	observer  Observer
	random    func() float64
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// Logger is an interface for debug logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
}

// Config holds configuration for the transport.
type Config struct {
	HTTPClient *http.Client
	UserAgent  string
	Logger     Logger
	Observer   Observer

	// Random, Now and Sleep replace the jitter source, the clock used for
	// Retry-After dates, and the inter-attempt sleep. Nil means the real ones.
	Random func() float64
	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
}

// RetryConfig configures retry behavior for one delivery.
type RetryConfig struct {
	MaxAttempts       int
	RetryableStatuses []int
	Backoff           time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		RetryableStatuses: []int{
			http.StatusRequestTimeout,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
		Backoff:           1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// AcceptPolicy decides which response statuses count as a delivered event.
// A status is accepted when it is listed in Codes or lies in [200, Max).
type AcceptPolicy struct {
	Codes []int
	Max   int
}

// Accepts reports whether statusCode counts as success.
func (a AcceptPolicy) Accepts(statusCode int) bool {
	for _, c := range a.Codes {
		if c == statusCode {
			return true
		}
	}
	upper := a.Max
	if upper == 0 {
		upper = http.StatusMultipleChoices
	}
	return statusCode >= http.StatusOK && statusCode < upper
}

// Request describes one delivery.
type Request struct {
	Token         string
	URL           string
	AuthToken     string
	Headers       map[string]string
	Timeout       time.Duration
	ParseResponse bool
	Accept        AcceptPolicy
	Retry         RetryConfig
}

// Status is the terminal state of a delivery that produced a response.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Result is returned for every delivery that ended with an HTTP response.
type Result struct {
	Status     Status      `json:"status"`
	StatusCode int         `json:"status_code"`
	Body       any         `json:"body,omitempty"`
	Headers    http.Header `json:"headers,omitempty"`
	Error      string      `json:"error,omitempty"`
	Retryable  bool        `json:"retryable,omitempty"`
	Attempts   int         `json:"attempts"`
}

// response is the raw outcome of one attempt that reached the receiver.
type response struct {
	statusCode int
	body       []byte
	headers    http.Header
}

// NewTransport creates a new Transport with the given configuration.
func NewTransport(cfg Config) *Transport {
	if cfg.HTTPClient == nil {
		// Per-attempt deadlines come from the request context.
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = version.UserAgent()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}

	return &Transport{
		client:    cfg.HTTPClient,
		userAgent: cfg.UserAgent,
		logger:    cfg.Logger,
		observer:  cfg.Observer,
		random:    cfg.Random,
		now:       cfg.Now,
		sleep:     cfg.Sleep,
	}
}

// Transmit POSTs req.Token to req.URL until the receiver accepts it, a
// non-retryable outcome occurs, or the attempt budget runs out.
//
// Outcomes:
//   - accepted status: Result with StatusSuccess
//   - rejected status that is not retryable, or the budget ran out after a
//     response: Result with StatusFailed, no error
//   - malformed token or URL: *ValidationError, nothing is sent
//   - the budget ran out after a transport failure: *NetworkError or
//     *TimeoutError matching ErrRetriesExhausted
//   - ctx cancelled: *TransmissionError
func (t *Transport) Transmit(ctx context.Context, req *Request) (*Result, error) {
	if err := ValidateToken(req.Token); err != nil {
		return nil, err
	}
	if err := ValidateURL(req.URL); err != nil {
		return nil, err
	}

	policy := NewRetryPolicy(req.Retry).WithRandom(t.random)
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var (
		last     *response
		lastErr  error
		attempts int
	)

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		attempts = attempt
		t.log("transmitting event", "attempt", attempt, "url", req.URL)

		start := time.Now()
		resp, err := t.doOnce(ctx, req, timeout)
		latency := time.Since(start)

		if err != nil {
			t.notifyAttempt(ctx, AttemptEvent{Attempt: attempt, Err: err, Latency: latency})
			if !IsRetryable(err) {
				return nil, err
			}
			last, lastErr = nil, err
			t.log("attempt failed", "attempt", attempt, "error", err)

			if !policy.ShouldRetry(0, attempt) {
				break
			}
			if err := t.wait(ctx, attempt, policy.Delay(attempt, 0)); err != nil {
				return nil, err
			}
			continue
		}

		accepted := req.Accept.Accepts(resp.statusCode)
		t.notifyAttempt(ctx, AttemptEvent{
			Attempt:    attempt,
			StatusCode: resp.statusCode,
			Accepted:   accepted,
			Latency:    latency,
		})
		if accepted {
			t.log("event accepted", "attempt", attempt, "status", resp.statusCode)
			return &Result{
				Status:     StatusSuccess,
				StatusCode: resp.statusCode,
				Body:       decodeBody(resp, req.ParseResponse),
				Headers:    resp.headers,
				Attempts:   attempt,
			}, nil
		}

		last, lastErr = resp, nil
		t.log("event rejected", "attempt", attempt, "status", resp.statusCode)

		if !policy.IsRetryableStatus(resp.statusCode) {
			return failedResult(resp, req.ParseResponse, attempt, false), nil
		}
		if !policy.ShouldRetry(resp.statusCode, attempt) {
			break
		}

		hint, _ := ParseRetryAfter(resp.headers.Get("Retry-After"), t.now())
		if err := t.wait(ctx, attempt, policy.Delay(attempt, hint)); err != nil {
			return nil, err
		}
	}

	if last != nil {
		return failedResult(last, req.ParseResponse, attempts, true), nil
	}
	if base, ok := AsClassifiedError(lastErr); ok {
		base.markExhausted(attempts)
	}
	return nil, lastErr
}

// doOnce executes a single attempt bounded by timeout.
func (t *Transport) doOnce(ctx context.Context, req *Request, timeout time.Duration) (*response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, req.URL, strings.NewReader(req.Token))
	if err != nil {
		return nil, NewTransmissionError("failed to create request", err)
	}
	t.setHeaders(httpReq.Header, req)

	httpResp, err := t.client.Do(httpReq) //nolint:gosec // destination is caller-configured
	if err != nil {
		return nil, classify(ctx, attemptCtx, timeout, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, classify(ctx, attemptCtx, timeout, fmt.Errorf("failed to read response body: %w", err))
	}

	return &response{
		statusCode: httpResp.StatusCode,
		body:       body,
		headers:    httpResp.Header,
	}, nil
}

// setHeaders layers defaults, then authorization, then caller overrides.
func (t *Transport) setHeaders(h http.Header, req *Request) {
	h.Set("Content-Type", ContentTypeSecEvent)
	h.Set("Accept", "application/json")
	h.Set("User-Agent", t.userAgent)

	if req.AuthToken != "" {
		h.Set("Authorization", BearerToken(req.AuthToken))
	}

	for k, v := range req.Headers {
		h.Set(k, v)
	}
}

// wait sleeps before the attempt following attempt.
func (t *Transport) wait(ctx context.Context, attempt int, delay time.Duration) error {
	if t.observer != nil {
		t.observer.OnRetry(ctx, attempt, delay)
	}
	t.log("retrying transmission", "attempt", attempt+1, "delay", delay)

	if err := t.sleep(ctx, delay); err != nil {
		return NewTransmissionError("transmission cancelled", err)
	}
	return nil
}

func (t *Transport) notifyAttempt(ctx context.Context, e AttemptEvent) {
	if t.observer != nil {
		t.observer.OnAttempt(ctx, e)
	}
}

// log logs a debug message.
func (t *Transport) log(msg string, keysAndValues ...any) {
	if t.logger != nil {
		t.logger.Debug(msg, keysAndValues...)
	}
}

// classify maps a failed round trip onto the error taxonomy.
func classify(parent, attemptCtx context.Context, timeout time.Duration, err error) error {
	if parent.Err() != nil {
		return NewTransmissionError("transmission cancelled", parent.Err())
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return NewTimeoutError(timeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError(timeout, err)
	}
	return NewNetworkError(err)
}

// BearerToken returns token as an Authorization value, adding the Bearer
// scheme unless it is already present.
func BearerToken(token string) string {
	const prefix = "Bearer "
	if len(token) >= len(prefix) && strings.EqualFold(token[:len(prefix)], prefix) {
		return token
	}
	return prefix + token
}

func failedResult(resp *response, parse bool, attempts int, retryable bool) *Result {
	return &Result{
		Status:     StatusFailed,
		StatusCode: resp.statusCode,
		Body:       decodeBody(resp, parse),
		Headers:    resp.headers,
		Error:      fmt.Sprintf("receiver responded with status %d %s", resp.statusCode, http.StatusText(resp.statusCode)),
		Retryable:  retryable,
		Attempts:   attempts,
	}
}

// decodeBody returns the JSON-decoded body when parse is set and the
// response declares JSON, otherwise the raw text.
func decodeBody(resp *response, parse bool) any {
	if parse && len(resp.body) > 0 && isJSON(resp.headers.Get("Content-Type")) {
		var v any
		if err := json.Unmarshal(resp.body, &v); err == nil {
			return v
		}
	}
	return string(resp.body)
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
