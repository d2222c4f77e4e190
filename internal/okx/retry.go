package okx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// withRetry runs fn up to maxAttempts times with a constant delay between
// attempts. Exhaustion is reported as ErrFetchFailed wrapping the last error.
func (c *Client) withRetry(ctx context.Context, op string, attrs []any, fn func(ctx context.Context) error) error {
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewConstant(c.retryDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := fn(ctx); err != nil {
			args := append([]any{"attempt", attempt, "max_attempts", c.maxAttempts, "error", err}, attrs...)
			if attempt < c.maxAttempts {
				slog.Warn(op+" failed, retrying", append(args, "retry_in", c.retryDelay)...)
			} else {
				slog.Error(op+" failed, giving up", args...)
			}
			c.metrics.ObserveRetry(op)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s after %d attempts: %w", ErrFetchFailed, op, attempt, err)
	}
	return nil
}

// Pause waits for d unless ctx ends first. A non-positive d returns at once
// but still reports a canceled ctx.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
