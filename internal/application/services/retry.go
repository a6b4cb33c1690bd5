package services

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/config"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
)

// retryStale re-runs operation while it fails with a stale version. Lock
// timeouts are not retried here: the caller already waited for the lease.
func retryStale[T any](ctx context.Context, cfg config.RetryConfig, operation func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)

	attempts := cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		resp, err := operation(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !errors.Is(err, domain.ErrStaleVersion) {
			return zero, err
		}

		if attempt < attempts-1 {
			timer := time.NewTimer(backoff(cfg.BaseDelay, attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return zero, lastErr
}

// backoff calculation with exponential delay and jitter
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base * time.Duration(1<<attempt)
	jitter := time.Duration(rand.Int63n(int64(base)))
	return delay + jitter
}
