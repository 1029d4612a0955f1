package httpx

import (
	"context"
	"time"
)

// AttemptEvent describes the outcome of one delivery attempt.
type AttemptEvent struct {
	Attempt    int
	StatusCode int
	Accepted   bool
	Err        error
	Latency    time.Duration
}

// Observer receives attempt and retry notifications from a Transport.
// Implementations must be safe for concurrent use.
type Observer interface {
	OnAttempt(ctx context.Context, e AttemptEvent)
	OnRetry(ctx context.Context, attempt int, delay time.Duration)
}

// Observers fans notifications out to every non-nil observer in order.
type Observers []Observer

// OnAttempt implements Observer.
func (obs Observers) OnAttempt(ctx context.Context, e AttemptEvent) {
	for _, o := range obs {
		if o != nil {
			o.OnAttempt(ctx, e)
		}
	}
}

// OnRetry implements Observer.
func (obs Observers) OnRetry(ctx context.Context, attempt int, delay time.Duration) {
	for _, o := range obs {
		if o != nil {
			o.OnRetry(ctx, attempt, delay)
		}
	}
}
