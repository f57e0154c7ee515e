// Package retry wraps calls to unreliable upstream services with bounded
// exponential backoff and a per-attempt timeout.
package retry

import (
	"context"
	"time"

	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/errors"
	"github.com/julianstephens/daylitd/internal/logger"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy controls retry behavior. MaxRetries is the total number of
// attempts, not the number of retries after the first.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Timeout bounds each attempt. Zero disables the per-attempt deadline.
	Timeout time.Duration
	// Retryable classifies errors. Defaults to errors.IsRetryable.
	Retryable func(error) bool
	// Sleep defaults to a context-aware timer.
	Sleep SleepFunc
}

// DefaultPolicy returns the policy used for reasoning-service calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: constants.DefaultMaxRetries,
		BaseDelay:  constants.DefaultRetryBaseDelay,
		MaxDelay:   constants.DefaultRetryMaxDelay,
		Timeout:    constants.DefaultCallTimeout,
	}
}

// Delay returns the wait before the given retry (1-based): BaseDelay doubled
// for every earlier retry, capped at MaxDelay.
func (p Policy) Delay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < retry; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Budget is the longest Do can run when every attempt hits its deadline:
// each attempt's Timeout plus every backoff between attempts.
func (p Policy) Budget() time.Duration {
	attempts := p.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	total := time.Duration(attempts) * p.Timeout
	for retry := 1; retry < attempts; retry++ {
		total += p.Delay(retry)
	}
	return total
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. The last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = errors.IsRetryable
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	log := logger.For("retry")

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := p.Delay(attempt - 1)
			if err := sleep(ctx, delay); err != nil {
				return zero, err
			}
		}

		result, err := call(ctx, p.Timeout, fn)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if !retryable(err) {
			log.Debug("Non-retryable failure", "attempt", attempt, "error", err)
			return zero, err
		}
		if attempt < attempts {
			log.Warn("Transient failure, retrying", "attempt", attempt, "max_attempts", attempts, "error", err)
		}
	}

	log.Error("Retry budget exhausted", "attempts", attempts, "error", lastErr)
	return zero, lastErr
}

func call[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
