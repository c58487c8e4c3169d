// Package retry runs fallible operations under an explicit attempt budget
// with backoff between attempts.
package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	MaxAttempts int
	// Backoff returns the wait before attempt n+1, given the 0-indexed attempt n that just failed.
	Backoff func(attempt int) time.Duration
}

// Exponential returns base * 2^attempt, capped at max.
func Exponential(base, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base << uint(attempt)
		if d <= 0 || (max > 0 && d > max) {
			d = max
		}
		return d
	}
}

// Jittered adds up to 50% random jitter on top of the wrapped backoff.
func Jittered(backoff func(int) time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := backoff(attempt)
		if d <= 1 {
			return d
		}
		return d + time.Duration(rand.Int64N(int64(d)/2))
	}
}

// Default is three attempts waiting 1s then 2s.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     Exponential(time.Second, 30*time.Second),
	}
}

// Do calls op until it succeeds, returns a non-retryable error, or the attempt
// budget is spent. It returns the last value and error along with the number
// of attempts made. onRetry, when set, is called before each wait.
func Do[T any](
	ctx context.Context,
	p Policy,
	retryable func(error) bool,
	onRetry func(attempt int, err error, wait time.Duration),
	op func(ctx context.Context, attempt int) (T, error),
) (T, int, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var (
		val T
		err error
	)
	for attempt := range attempts {
		val, err = op(ctx, attempt)
		if err == nil {
			return val, attempt + 1, nil
		}
		if retryable != nil && !retryable(err) {
			return val, attempt + 1, err
		}
		if attempt == attempts-1 {
			break
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}
		if wait <= 0 {
			if ctx.Err() != nil {
				return val, attempt + 1, ctx.Err()
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return val, attempt + 1, ctx.Err()
		}
	}
	return val, attempts, err
}
