// Package metrics exposes Prometheus collectors for SET transmissions.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ssfkit/ssf-transmit-go/internal/httpx"
)

const namespace = "ssf_transmit"

// Attempt outcome labels.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeTimeout  = "timeout"
	OutcomeNetwork  = "network_error"
	OutcomeError    = "error"
)

// Metrics holds the transmission collectors. It implements httpx.Observer.
type Metrics struct {
	// AttemptsTotal counts attempts by outcome.
	AttemptsTotal *prometheus.CounterVec
	// RetriesTotal counts scheduled retries.
	RetriesTotal prometheus.Counter
	// ResultsTotal counts finished transmissions by status.
	ResultsTotal *prometheus.CounterVec
	// AttemptLatency tracks the duration of single attempts.
	AttemptLatency *prometheus.HistogramVec
	// BackoffDelay tracks the delays slept between attempts.
	BackoffDelay prometheus.Histogram
}

// New registers the collectors with reg. A nil reg means the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Total number of delivery attempts",
			},
			[]string{"outcome"},
		),
		RetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Total number of retries scheduled after a failed attempt",
			},
		),
		ResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "results_total",
				Help:      "Total number of finished transmissions",
			},
			[]string{"status"},
		),
		AttemptLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attempt_latency_seconds",
				Help:      "Delivery attempt latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status_code"},
		),
		BackoffDelay: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backoff_delay_seconds",
				Help:      "Delay slept before a retry in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),
	}
}

// OnAttempt implements httpx.Observer.
func (m *Metrics) OnAttempt(_ context.Context, e httpx.AttemptEvent) {
	m.AttemptsTotal.WithLabelValues(Outcome(e)).Inc()
	m.AttemptLatency.WithLabelValues(strconv.Itoa(e.StatusCode)).Observe(e.Latency.Seconds())
}

// OnRetry implements httpx.Observer.
func (m *Metrics) OnRetry(_ context.Context, _ int, delay time.Duration) {
	m.RetriesTotal.Inc()
	m.BackoffDelay.Observe(delay.Seconds())
}

// ObserveResult records how a transmission finished. Thrown errors are
// counted under their error class.
func (m *Metrics) ObserveResult(result *httpx.Result, err error) {
	m.ResultsTotal.WithLabelValues(ResultStatus(result, err)).Inc()
}

// Outcome classifies a single attempt.
func Outcome(e httpx.AttemptEvent) string {
	switch {
	case e.Err != nil && httpx.IsTimeoutError(e.Err):
		return OutcomeTimeout
	case e.Err != nil && httpx.IsNetworkError(e.Err):
		return OutcomeNetwork
	case e.Err != nil:
		return OutcomeError
	case e.Accepted:
		return OutcomeAccepted
	default:
		return OutcomeRejected
	}
}

// ResultStatus names the terminal state of a transmission.
func ResultStatus(result *httpx.Result, err error) string {
	switch {
	case err == nil && result != nil:
		return string(result.Status)
	case httpx.IsValidationError(err):
		return "invalid"
	case httpx.IsTimeoutError(err):
		return OutcomeTimeout
	case httpx.IsNetworkError(err):
		return OutcomeNetwork
	default:
		return OutcomeError
	}
}
