package fn

import (
	"context"
	"math/rand"
	"time"
)

// RetryOpts configures retry behavior. The policy is pure data: attempt
// count, delay schedule, and a transient/terminal classifier.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
	// Retryable classifies an error as transient. A nil classifier treats
	// every error as transient. Terminal errors are returned immediately
	// without consuming further attempts.
	Retryable func(error) bool
	// OnRetry is invoked before each backoff sleep with the attempt number
	// (1-based), the error that triggered the retry, and the sleep duration.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultRetry provides sensible retry defaults.
var DefaultRetry = RetryOpts{
	MaxAttempts: 3,
	InitialWait: time.Second,
	MaxWait:     30 * time.Second,
	Jitter:      true,
}

// Retry retries f up to MaxAttempts times with exponential backoff.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	var result Result[T]
	wait := opts.InitialWait

	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		result = f(ctx)
		if result.IsOk() {
			return result
		}
		_, err := result.Unwrap()
		if opts.Retryable != nil && !opts.Retryable(err) {
			return result
		}
		if attempt == opts.MaxAttempts-1 {
			break
		}
		// Check context before sleeping
		select {
		case <-ctx.Done():
			return Err[T](ctx.Err())
		default:
		}

		sleepDur := wait
		if opts.Jitter {
			sleepDur = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if sleepDur > opts.MaxWait {
			sleepDur = opts.MaxWait
		}

		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, err, sleepDur)
		}

		select {
		case <-ctx.Done():
			return Err[T](ctx.Err())
		case <-time.After(sleepDur):
		}

		wait *= 2
		if wait > opts.MaxWait {
			wait = opts.MaxWait
		}
	}
	return result
}
