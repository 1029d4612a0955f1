package ssf

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/ssfkit/ssf-transmit-go/internal/httpx"
	"github.com/ssfkit/ssf-transmit-go/internal/version"
)

// Default configuration values
const (
	DefaultTimeout = httpx.DefaultTimeout
)

// RetryConfig configures retry behavior for one transmission.
type RetryConfig = httpx.RetryConfig

// AcceptPolicy decides which receiver statuses count as delivered.
type AcceptPolicy = httpx.AcceptPolicy

// DefaultRetryConfig returns the default retry configuration: 3 attempts,
// 1s initial backoff doubling up to 30s, retrying 408, 429, 500, 502, 503
// and 504.
func DefaultRetryConfig() RetryConfig {
	return httpx.DefaultRetryConfig()
}

// Logger is the interface for debug logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
}

// LoggerFunc is a function adapter for Logger.
type LoggerFunc func(msg string, keysAndValues ...any)

// Debug implements Logger.
func (f LoggerFunc) Debug(msg string, keysAndValues ...any) {
	f(msg, keysAndValues...)
}

// SlogLogger adapts l to Logger.
func SlogLogger(l *slog.Logger) Logger {
	return LoggerFunc(l.Debug)
}

// Config holds the client configuration.
type Config struct {
	// Issuer is the iss claim of events built by Send.
	Issuer string
	// Audience is the default aud claim of events built by Send.
	Audience string

	// Timeout bounds a single delivery attempt.
	Timeout time.Duration
	// Retry is the default retry configuration.
	Retry RetryConfig
	// Accept is the default accept policy.
	Accept AcceptPolicy
	// Headers are added to every delivery. Per-call headers win.
	Headers map[string]string
	// UserAgent is the custom user agent string.
	UserAgent string
	// HTTPClient performs the deliveries.
	HTTPClient *http.Client

	// AddressResolver, AuthResolver, HeaderResolver and Signer feed Send.
	AddressResolver AddressResolver
	AuthResolver    AuthResolver
	HeaderResolver  HeaderResolver
	Signer          Signer

	// Logger is the debug logger.
	Logger Logger
	// Registerer receives the transmission metrics. Nil disables metrics.
	Registerer prometheus.Registerer
	// TracerProvider creates transmission spans. Nil means the global provider.
	TracerProvider trace.TracerProvider

	// Now, NewID and Random replace the clock, the jti and runtime id
	// generator, and the jitter source.
	Now    func() time.Time
	NewID  func() string
	Random func() float64
	// Sleep waits between attempts. Nil means a timer honoring ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithIssuer sets the iss claim used by Send.
func WithIssuer(issuer string) Option {
	return func(c *Config) {
		c.Issuer = issuer
	}
}

// WithAudience sets the default aud claim used by Send.
func WithAudience(audience string) Option {
	return func(c *Config) {
		c.Audience = audience
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithRetry sets the default retry configuration.
func WithRetry(cfg RetryConfig) Option {
	return func(c *Config) {
		c.Retry = cfg
	}
}

// WithAcceptPolicy sets the default accept policy.
func WithAcceptPolicy(p AcceptPolicy) Option {
	return func(c *Config) {
		c.Accept = p
	}
}

// WithHeaders sets additional headers for all deliveries.
func WithHeaders(headers map[string]string) Option {
	return func(c *Config) {
		if c.Headers == nil {
			c.Headers = make(map[string]string)
		}
		for k, v := range headers {
			c.Headers[k] = v
		}
	}
}

// WithUserAgent sets a custom user agent string.
func WithUserAgent(ua string) Option {
	return func(c *Config) {
		c.UserAgent = ua
	}
}

// WithHTTPClient sets the HTTP client used for deliveries.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = hc
	}
}

// WithAddressResolver sets where Send delivers events.
func WithAddressResolver(r AddressResolver) Option {
	return func(c *Config) {
		c.AddressResolver = r
	}
}

// WithAuthResolver sets the source of the receiver bearer token.
func WithAuthResolver(r AuthResolver) Option {
	return func(c *Config) {
		c.AuthResolver = r
	}
}

// WithHeaderResolver sets the source of per-receiver header overrides.
func WithHeaderResolver(r HeaderResolver) Option {
	return func(c *Config) {
		c.HeaderResolver = r
	}
}

// WithSigner sets the signer turning claims into a compact token.
func WithSigner(s Signer) Option {
	return func(c *Config) {
		c.Signer = s
	}
}

// WithLogger sets the debug logger.
func WithLogger(l Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithDebug enables debug logging to stderr.
func WithDebug(enabled bool) Option {
	return func(c *Config) {
		if enabled {
			handler := tint.NewHandler(os.Stderr, &tint.Options{
				Level:      slog.LevelDebug,
				TimeFormat: time.RFC3339,
			})
			c.Logger = SlogLogger(slog.New(handler).With("sdk", version.SDKName))
		}
	}
}

// WithMetrics registers transmission metrics with reg. Registration panics
// if reg already holds them, so give each client its own registerer or wrap
// it with prometheus.WrapRegistererWith.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registerer = reg
	}
}

// WithTracerProvider sets the provider for transmission spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) {
		c.TracerProvider = tp
	}
}

// WithClock sets the clock used for iat claims and runtime.time.now.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Now = now
	}
}

// WithIDGenerator sets the generator used for jti claims and runtime.random.uuid.
func WithIDGenerator(newID func() string) Option {
	return func(c *Config) {
		c.NewID = newID
	}
}

// WithRandom sets the jitter source, returning values in [0, 1).
func WithRandom(random func() float64) Option {
	return func(c *Config) {
		c.Random = random
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Config) {
		c.Sleep = sleep
	}
}

// newDefaultConfig creates a new config with default values.
func newDefaultConfig() *Config {
	return &Config{
		Timeout:   DefaultTimeout,
		Retry:     DefaultRetryConfig(),
		Headers:   make(map[string]string),
		UserAgent: version.UserAgent(),
	}
}

// resolveConfig applies options and resolves derived values.
func resolveConfig(opts ...Option) *Config {
	cfg := newDefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	return cfg
}
