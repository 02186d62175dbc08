package agents

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy is an explicit bounded-backoff policy. The invoker never
// retries on its own; callers opt in by wrapping an invocation in Do. Only
// transient errors are retried — agent failures and caller bugs surface
// immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// ClassifierRetryPolicy absorbs cold-start latency of the model service
// behind the classification capability, the one failure mode known to be
// transient enough to justify retrying.
func ClassifierRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  1,
		MaxDelay:    10 * time.Second,
	}
}

// Do runs fn until it succeeds, fails non-transiently, or attempts are
// exhausted. The last error is returned. Context cancellation interrupts the
// backoff wait.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	delay := p.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var transient *TransientError
		if !errors.As(lastErr, &transient) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(ctx.Err(), lastErr)
			case <-timer.C:
			}
		}

		next := delay
		if p.Multiplier > 0 {
			next = time.Duration(float64(delay) * p.Multiplier)
		}
		if p.MaxDelay > 0 && next > p.MaxDelay {
			next = p.MaxDelay
		}
		delay = next
	}
	return lastErr
}
