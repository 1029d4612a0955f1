package httpx

import (
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// jitterSpread is the fraction of the computed delay that jitter may add or remove.
const jitterSpread = 0.25

// RetryPolicy decides whether another attempt is allowed and how long to wait
// before it. It holds no mutable state and is safe for concurrent use.
type RetryPolicy struct {
	MaxAttempts       int
	Backoff           time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	retryable map[int]struct{}
	random    func() float64
}

// WithDefaults returns c with zero-valued fields filled from
// DefaultRetryConfig. A nil RetryableStatuses takes the default set; an
// empty one disables status retries.
func (c RetryConfig) WithDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts == 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.RetryableStatuses == nil {
		c.RetryableStatuses = def.RetryableStatuses
	}
	if c.Backoff <= 0 {
		c.Backoff = def.Backoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.BackoffMultiplier <= 0 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
	return c
}

// NewRetryPolicy creates a retry policy, filling zero-valued fields with defaults.
func NewRetryPolicy(cfg RetryConfig) *RetryPolicy {
	cfg = cfg.WithDefaults()

	retryable := make(map[int]struct{}, len(cfg.RetryableStatuses))
	for _, code := range cfg.RetryableStatuses {
		retryable[code] = struct{}{}
	}

	return &RetryPolicy{
		MaxAttempts:       cfg.MaxAttempts,
		Backoff:           cfg.Backoff,
		MaxBackoff:        cfg.MaxBackoff,
		BackoffMultiplier: cfg.BackoffMultiplier,
		retryable:         retryable,
		random:            rand.Float64,
	}
}

// WithRandom returns a copy of the policy drawing jitter samples from random.
func (p *RetryPolicy) WithRandom(random func() float64) *RetryPolicy {
	cp := *p
	if random != nil {
		cp.random = random
	}
	return &cp
}

// IsRetryableStatus reports whether statusCode is in the retryable set.
func (p *RetryPolicy) IsRetryableStatus(statusCode int) bool {
	_, ok := p.retryable[statusCode]
	return ok
}

// ShouldRetry reports whether another attempt may follow attempt (1-indexed).
// A statusCode of 0 means the attempt produced no HTTP response.
func (p *RetryPolicy) ShouldRetry(statusCode, attempt int) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	if statusCode == 0 {
		return true
	}
	return p.IsRetryableStatus(statusCode)
}

// Delay returns how long to wait after attempt (1-indexed) before the next one.
// A positive hint, usually taken from Retry-After, replaces the computed backoff.
func (p *RetryPolicy) Delay(attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		return min(hint, p.MaxBackoff)
	}
	return p.DelayWithJitter(attempt, p.random())
}

// DelayWithJitter computes the backoff for attempt with a fixed jitter sample
// u in [0, 1). u = 0.5 yields the un-jittered delay.
func (p *RetryPolicy) DelayWithJitter(attempt int, u float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(p.Backoff) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	base = math.Min(math.Max(base, 0), float64(p.MaxBackoff))

	delay := base + base*jitterSpread*(2*u-1)
	delay = math.Floor(delay/float64(time.Millisecond)) * float64(time.Millisecond)
	delay = math.Min(math.Max(delay, 0), float64(p.MaxBackoff))
	return time.Duration(delay)
}

// ParseRetryAfter interprets a Retry-After header value relative to now.
// The integer-seconds form wins over the HTTP-date form. It returns false when
// the value is missing, unparseable, or not in the future.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0, false
		}
		if int64(secs) > math.MaxInt64/int64(time.Second) {
			return time.Duration(math.MaxInt64), true
		}
		return time.Duration(secs) * time.Second, true
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	d := at.Sub(now).Truncate(time.Millisecond)
	if d <= 0 {
		return 0, false
	}
	return d, true
}
