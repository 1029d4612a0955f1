// Package tracing wraps SET transmissions in OpenTelemetry spans.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ssfkit/ssf-transmit-go/internal/httpx"
)

const tracerName = "github.com/ssfkit/ssf-transmit-go"

// Tracer starts transmission spans and records attempts on them. It
// implements httpx.Observer; events go to the span found in the context.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from tp. A nil tp means the global provider.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{
		tracer: tp.Tracer(tracerName),
	}
}

// StartTransmitSpan starts the span covering one transmission.
func (t *Tracer) StartTransmitSpan(ctx context.Context, url string, maxAttempts int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "ssf.transmit",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("url.full", url),
			attribute.Int("ssf.max_attempts", maxAttempts),
		),
	)
}

// EndTransmitSpan ends a transmission span with result attributes.
func (t *Tracer) EndTransmitSpan(span trace.Span, result *httpx.Result, err error) {
	defer span.End()

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("ssf.retryable", httpx.IsRetryable(err)))
		if base, ok := httpx.AsClassifiedError(err); ok {
			span.SetAttributes(
				attribute.String("ssf.error_code", base.Code),
				attribute.Int("ssf.attempts", base.Attempts),
			)
		}
		span.SetStatus(codes.Error, err.Error())
		return
	}
	if result == nil {
		return
	}

	span.SetAttributes(
		attribute.String("ssf.status", string(result.Status)),
		attribute.Int("http.response.status_code", result.StatusCode),
		attribute.Int("ssf.attempts", result.Attempts),
		attribute.Bool("ssf.retryable", result.Retryable),
	)
	if result.Status == httpx.StatusFailed {
		span.SetStatus(codes.Error, result.Error)
	}
}

// OnAttempt implements httpx.Observer.
func (t *Tracer) OnAttempt(ctx context.Context, e httpx.AttemptEvent) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Int("ssf.attempt", e.Attempt),
		attribute.Int64("ssf.latency_ms", e.Latency.Milliseconds()),
	}
	if e.Err != nil {
		attrs = append(attrs, attribute.String("ssf.error", e.Err.Error()))
	} else {
		attrs = append(attrs,
			attribute.Int("http.response.status_code", e.StatusCode),
			attribute.Bool("ssf.accepted", e.Accepted),
		)
	}
	span.AddEvent("ssf.attempt", trace.WithAttributes(attrs...))
}

// OnRetry implements httpx.Observer.
func (t *Tracer) OnRetry(ctx context.Context, attempt int, delay time.Duration) {
	trace.SpanFromContext(ctx).AddEvent("ssf.retry", trace.WithAttributes(
		attribute.Int("ssf.attempt", attempt),
		attribute.Int64("ssf.delay_ms", delay.Milliseconds()),
	))
}
