package resilience

import (
	"context"
	"time"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/core"
)

// RetryPolicy implements spec §7's Transient handling: the first attempt
// plus up to 3 retries with exponential backoff starting at 100ms (100ms,
// 200ms, 400ms). MaxAttempts counts every attempt, the first included.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy is the spec's literal schedule.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, InitialDelay: 100 * time.Millisecond, Multiplier: 2}
}

// Do runs fn, retrying only errors core.IsRetryable considers transient.
// Conflict errors are the caller's responsibility (spec says retried once,
// by the caller, not by this generic policy) — see assignment.Assigner.Assign.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	delay := p.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !core.IsRetryable(lastErr) || attempt == p.MaxAttempts {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
	}
	return lastErr
}
