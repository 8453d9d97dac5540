package handler

import (
	"context"
	"time"
)

// RetryStrategy defines the interface for retry strategies
type RetryStrategy interface {
	// NextRetry calculates the delay before the given retry attempt
	NextRetry(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff retry strategy
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultBackoff is used when the dispatcher retries without a strategy
var DefaultBackoff = &ExponentialBackoff{
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2,
}

// NextRetry calculates the next retry delay using exponential backoff
func (s *ExponentialBackoff) NextRetry(attempt int) time.Duration {
	delay := float64(s.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= s.Multiplier
	}

	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// withRetry calls fn up to maxAttempts times, waiting between attempts as the
// strategy says. It returns the last error, or ctx.Err() if ctx ends while
// waiting.
func withRetry(ctx context.Context, maxAttempts int, strategy RetryStrategy, fn func(attempt int) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(strategy.NextRetry(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err = fn(attempt); err == nil {
			return nil
		}
	}
	return err
}
