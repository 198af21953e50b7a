package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"liquidityEngine/internal/model"
)

// Retrying retries failed writes to Sink with exponential backoff.
type Retrying struct {
	Sink       EventSink
	MaxRetries int
	Backoff    time.Duration
	Logger     *zap.Logger
}

func (r *Retrying) PutEvents(ctx context.Context, events []model.Event) error {
	return withRetry(ctx, r.MaxRetries, r.Backoff, func(ctx context.Context) error {
		err := r.Sink.PutEvents(ctx, events)
		if err != nil && r.Logger != nil {
			r.Logger.Warn("put events failed", zap.Error(err), zap.Int("events", len(events)))
		}
		return err
	})
}

func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
