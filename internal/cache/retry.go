package cache

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig bounds remote-tier retries. The remote tier is an
// optimization: exhausting retries degrades to a miss, never to a caller
// visible failure.
type RetryConfig struct {
	MaxAttempts   int           // total attempts, including the first
	BaseDelay     time.Duration // delay before the first retry
	MaxDelay      time.Duration // backoff ceiling
	BackoffFactor float64       // exponential multiplier
	JitterFactor  float64       // fraction of the delay randomized away
}

// DefaultRetryConfig returns the remote-tier retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     25 * time.Millisecond,
		MaxDelay:      500 * time.Millisecond,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}
}

// withRemoteRetry runs op against the remote tier with a per-call timeout
// and exponential backoff between attempts.
func withRemoteRetry(ctx context.Context, cfg RetryConfig, timeout time.Duration, op func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := cfg.BaseDelay
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			jittered := delay
			if cfg.JitterFactor > 0 {
				jittered += time.Duration(rand.Float64() * cfg.JitterFactor * float64(delay))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jittered):
			}
			delay = time.Duration(float64(delay) * cfg.BackoffFactor)
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		lastErr = op(callCtx)
		if cancel != nil {
			cancel()
		}
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}
