package wait

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by Until when the condition never held
var ErrTimeout = errors.New("condition not met before timeout")

// Condition reports whether the awaited state has been reached
type Condition func(ctx context.Context) (bool, error)

// Sleep waits for the specified duration or until context is cancelled
func Sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Until polls cond until it returns true, it returns an error, the timeout
// elapses (ErrTimeout) or ctx is cancelled (ctx.Err()). The condition is
// checked once immediately. A nil backoff uses DefaultPollBackoff.
func Until(ctx context.Context, timeout time.Duration, backoff BackoffStrategy, cond Condition) error {
	if backoff == nil {
		backoff = DefaultPollBackoff()
	}

	deadline := time.Now().Add(timeout)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimeout
		}

		delay := backoff.NextDelay(attempt)
		if delay > remaining {
			delay = remaining
		}
		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}
}
