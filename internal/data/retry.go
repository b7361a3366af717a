package data

import (
	"context"
	"errors"
	"time"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
)

// RetryPolicy is a bounded retry with a pluggable backoff
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Retryable   func(err error) bool
	// Between runs after a retryable failure, before the backoff sleep
	Between func(ctx context.Context) error
	// OnRetry is notified of every retry
	OnRetry func(op string, attempt int, err error)
	Sleep   func(ctx context.Context, d time.Duration) error
}

// LinearBackoff returns step × attempt
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return step * time.Duration(attempt)
	}
}

// DefaultStoreRetry is 3 attempts with 0.5s × attempt backoff on lock errors
func DefaultStoreRetry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     LinearBackoff(500 * time.Millisecond),
		Retryable:   isLockError,
	}
}

// Do runs fn until it succeeds, fails with a non-retryable error, or attempts
// are exhausted. Failures are returned as *domain.StoreError.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return &domain.StoreError{Op: op, Attempts: attempt, Err: err}
		}
		if attempt == attempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(op, attempt, err)
		}
		if p.Between != nil {
			if berr := p.Between(ctx); berr != nil {
				err = errors.Join(err, berr)
			}
		}
		if p.Backoff != nil {
			if serr := sleep(ctx, p.Backoff(attempt)); serr != nil {
				return &domain.StoreError{Op: op, Attempts: attempt, Err: errors.Join(err, serr)}
			}
		}
	}
	return &domain.StoreError{Op: op, Attempts: attempts, Err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
