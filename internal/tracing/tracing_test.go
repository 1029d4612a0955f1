package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ssfkit/ssf-transmit-go/internal/httpx"
)

func newRecorder() (*tracetest.SpanRecorder, *Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, NewTracer(tp)
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracer_SuccessfulTransmission(t *testing.T) {
	sr, tracer := newRecorder()

	ctx, span := tracer.StartTransmitSpan(context.Background(), "https://receiver.example.com/events", 3)
	tracer.OnAttempt(ctx, httpx.AttemptEvent{Attempt: 1, StatusCode: 503, Latency: 15 * time.Millisecond})
	tracer.OnRetry(ctx, 1, 750*time.Millisecond)
	tracer.OnAttempt(ctx, httpx.AttemptEvent{Attempt: 2, StatusCode: 202, Accepted: true})
	tracer.EndTransmitSpan(span, &httpx.Result{Status: httpx.StatusSuccess, StatusCode: 202, Attempts: 2}, nil)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	got := spans[0]

	if got.Name() != "ssf.transmit" {
		t.Errorf("span name = %q", got.Name())
	}
	if v, ok := attrValue(got.Attributes(), "url.full"); !ok || v.AsString() != "https://receiver.example.com/events" {
		t.Errorf("url.full = %v", v)
	}
	if v, ok := attrValue(got.Attributes(), "http.response.status_code"); !ok || v.AsInt64() != 202 {
		t.Errorf("status code attribute = %v", v)
	}
	if v, ok := attrValue(got.Attributes(), "ssf.attempts"); !ok || v.AsInt64() != 2 {
		t.Errorf("attempts attribute = %v", v)
	}
	if got.Status().Code == codes.Error {
		t.Error("successful transmission should not set error status")
	}

	events := got.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	names := []string{events[0].Name, events[1].Name, events[2].Name}
	want := []string{"ssf.attempt", "ssf.retry", "ssf.attempt"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	if v, ok := attrValue(events[1].Attributes, "ssf.delay_ms"); !ok || v.AsInt64() != 750 {
		t.Errorf("retry delay attribute = %v", v)
	}
}

func TestTracer_FailedResult(t *testing.T) {
	sr, tracer := newRecorder()

	_, span := tracer.StartTransmitSpan(context.Background(), "https://receiver.example.com", 1)
	tracer.EndTransmitSpan(span, &httpx.Result{
		Status:     httpx.StatusFailed,
		StatusCode: 400,
		Error:      "receiver responded with status 400 Bad Request",
		Attempts:   1,
	}, nil)

	got := sr.Ended()[0]
	if got.Status().Code != codes.Error {
		t.Errorf("status = %v, want error", got.Status().Code)
	}
	if v, _ := attrValue(got.Attributes(), "ssf.status"); v.AsString() != "failed" {
		t.Errorf("ssf.status = %q", v.AsString())
	}
}

func TestTracer_ThrownError(t *testing.T) {
	sr, tracer := newRecorder()

	ctx, span := tracer.StartTransmitSpan(context.Background(), "https://receiver.example.com", 2)
	netErr := httpx.NewNetworkError(errors.New("connection refused"))
	tracer.OnAttempt(ctx, httpx.AttemptEvent{Attempt: 1, Err: netErr})
	tracer.EndTransmitSpan(span, nil, netErr)

	got := sr.Ended()[0]
	if got.Status().Code != codes.Error {
		t.Errorf("status = %v, want error", got.Status().Code)
	}
	if v, ok := attrValue(got.Attributes(), "ssf.error_code"); !ok || v.AsString() != "network_error" {
		t.Errorf("ssf.error_code = %v", v)
	}
	if v, _ := attrValue(got.Attributes(), "ssf.retryable"); !v.AsBool() {
		t.Error("expected ssf.retryable=true")
	}

	var sawException bool
	for _, e := range got.Events() {
		if e.Name == "exception" {
			sawException = true
		}
		if e.Name == "ssf.attempt" {
			if _, ok := attrValue(e.Attributes, "ssf.error"); !ok {
				t.Error("failed attempt event should carry ssf.error")
			}
		}
	}
	if !sawException {
		t.Error("expected the error to be recorded on the span")
	}
}

func TestTracer_NoSpanInContext(t *testing.T) {
	_, tracer := newRecorder()

	// Must not panic without an active span.
	tracer.OnAttempt(context.Background(), httpx.AttemptEvent{Attempt: 1})
	tracer.OnRetry(context.Background(), 1, time.Second)
}
