package ssf

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ssfkit/ssf-transmit-go/internal/httpx"
	"github.com/ssfkit/ssf-transmit-go/internal/metrics"
	"github.com/ssfkit/ssf-transmit-go/internal/template"
	"github.com/ssfkit/ssf-transmit-go/internal/tracing"
)

// Result is returned for every transmission that ended with a receiver response.
type Result = httpx.Result

// Status is the terminal state of a transmission.
type Status = httpx.Status

// Transmission statuses.
const (
	StatusSuccess = httpx.StatusSuccess
	StatusFailed  = httpx.StatusFailed
)

// TransmitOptions overrides the client defaults for one transmission.
type TransmitOptions struct {
	// AuthToken is sent as a bearer token. "Bearer " is added when missing.
	AuthToken string
	// Headers override every other header, including Authorization.
	Headers map[string]string
	// Timeout bounds a single attempt. Zero means the client timeout.
	Timeout time.Duration
	// ParseResponse decodes JSON response bodies. Nil means true.
	ParseResponse *bool
	// Accept overrides the client accept policy.
	Accept *AcceptPolicy
	// Retry overrides the client retry configuration. Zero-valued fields take
	// the defaults.
	Retry *RetryConfig
}

// Client transmits security event tokens. It is safe for concurrent use.
type Client struct {
	cfg       *Config
	transport *httpx.Transport
	tracer    *tracing.Tracer
	metrics   *metrics.Metrics
	mu        sync.RWMutex
	closed    bool
}

// NewClient creates a new client with the given options.
func NewClient(opts ...Option) (*Client, error) {
	cfg := resolveConfig(opts...)

	c := &Client{
		cfg:    cfg,
		tracer: tracing.NewTracer(cfg.TracerProvider),
	}

	observers := httpx.Observers{c.tracer}
	if cfg.Registerer != nil {
		c.metrics = metrics.New(cfg.Registerer)
		observers = append(observers, c.metrics)
	}

	c.transport = httpx.NewTransport(httpx.Config{
		HTTPClient: cfg.HTTPClient,
		UserAgent:  cfg.UserAgent,
		Logger:     wrapLogger(cfg.Logger),
		Observer:   observers,
		Random:     cfg.Random,
		Now:        cfg.Now,
		Sleep:      cfg.Sleep,
	})

	return c, nil
}

// wrapLogger wraps an ssf.Logger to an httpx.Logger.
func wrapLogger(l Logger) httpx.Logger {
	if l == nil {
		return nil
	}
	return l
}

// Close marks the client closed. Further calls fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// GetConfig returns a copy of the client configuration.
func (c *Client) GetConfig() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.cfg
}

// Transmit delivers token to url.
//
// A receiver response always yields a Result: Status is StatusSuccess when
// the accept policy admits the status code, StatusFailed otherwise. Errors
// are returned only when no response could be reported: *ValidationError
// before anything is sent, *NetworkError or *TimeoutError once retries are
// exhausted, and *TransmissionError when ctx is cancelled.
func (c *Client) Transmit(ctx context.Context, token, url string, opts *TransmitOptions) (*Result, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}

	req := c.buildRequest(token, url, opts)

	ctx, span := c.tracer.StartTransmitSpan(ctx, url, req.Retry.MaxAttempts)
	result, err := c.transport.Transmit(ctx, req)
	c.tracer.EndTransmitSpan(span, result, err)
	if c.metrics != nil {
		c.metrics.ObserveResult(result, err)
	}

	if err != nil {
		c.log("transmission failed", "url", url, "error", err)
	} else {
		c.log("transmission finished", "url", url, "status", result.Status, "status_code", result.StatusCode, "attempts", result.Attempts)
	}
	return result, err
}

// Send builds a SET for ev, signs it and transmits it to the resolved
// receiver. The receiver address comes from the AddressResolver, the bearer
// token from the AuthResolver unless opts sets one, and header overrides from
// the HeaderResolver under any headers in opts.
func (c *Client) Send(ctx context.Context, ev Event, opts *TransmitOptions) (*Result, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	if c.cfg.AddressResolver == nil {
		return nil, ErrNoAddressResolver
	}
	if c.cfg.Signer == nil {
		return nil, ErrNoSigner
	}

	var o TransmitOptions
	if opts != nil {
		o = *opts
	}

	url, err := c.cfg.AddressResolver.ResolveAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve receiver address: %w", err)
	}

	if o.AuthToken == "" && c.cfg.AuthResolver != nil {
		if o.AuthToken, err = c.cfg.AuthResolver.ResolveAuth(ctx); err != nil {
			return nil, fmt.Errorf("failed to resolve receiver auth: %w", err)
		}
	}

	if c.cfg.HeaderResolver != nil {
		resolved, err := c.cfg.HeaderResolver.ResolveHeaders(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve receiver headers: %w", err)
		}
		o.Headers = mergeHeaders(resolved, o.Headers)
	}

	audience := ev.Audience
	if audience == "" {
		audience = c.cfg.Audience
	}
	claims, err := BuildClaims(ev, c.cfg.Issuer, audience, c.now(), c.newID())
	if err != nil {
		return nil, err
	}

	token, err := c.cfg.Signer.Sign(ctx, claims)
	if err != nil {
		return nil, fmt.Errorf("failed to sign event: %w", err)
	}

	c.log("sending event", "type", ev.Type, "jti", claims["jti"], "url", url)
	return c.Transmit(ctx, token, url, &o)
}

// ResolveOptions controls template resolution.
type ResolveOptions = template.Options

// Resolve substitutes {$.path} placeholders in input with values from jobCtx.
// The runtime namespace uses the client clock and ID generator unless opts
// sets its own. A nil opts enables runtime injection.
func (c *Client) Resolve(input any, jobCtx map[string]any, opts *ResolveOptions) (any, []string) {
	o := template.DefaultOptions()
	if opts != nil {
		cp := *opts
		o = &cp
	}
	if o.Now == nil {
		o.Now = c.cfg.Now
	}
	if o.NewID == nil {
		o.NewID = c.cfg.NewID
	}
	return template.Resolve(input, jobCtx, o)
}

func (c *Client) buildRequest(token, url string, opts *TransmitOptions) *httpx.Request {
	req := &httpx.Request{
		Token:         token,
		URL:           url,
		Timeout:       c.cfg.Timeout,
		ParseResponse: true,
		Accept:        c.cfg.Accept,
		Retry:         c.cfg.Retry.WithDefaults(),
	}
	if opts == nil {
		req.Headers = mergeHeaders(c.cfg.Headers, nil)
		return req
	}

	req.AuthToken = opts.AuthToken
	req.Headers = mergeHeaders(c.cfg.Headers, opts.Headers)
	if opts.Timeout > 0 {
		req.Timeout = opts.Timeout
	}
	if opts.ParseResponse != nil {
		req.ParseResponse = *opts.ParseResponse
	}
	if opts.Accept != nil {
		req.Accept = *opts.Accept
	}
	if opts.Retry != nil {
		req.Retry = opts.Retry.WithDefaults()
	}
	return req
}

// mergeHeaders returns base overlaid with override.
func mergeHeaders(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Client) now() time.Time {
	if c.cfg.Now != nil {
		return c.cfg.Now()
	}
	return time.Now()
}

func (c *Client) newID() string {
	if c.cfg.NewID != nil {
		return c.cfg.NewID()
	}
	return uuid.NewString()
}

// log logs a debug message if logging is enabled.
func (c *Client) log(msg string, keysAndValues ...any) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Debug(msg, keysAndValues...)
	}
}
