package ai

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrInvalidMaxAttempts is returned when RetryWithBackoff is called with maxAttempts <= 0.
var ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

// MaxBackoff caps the delay between attempts.
const MaxBackoff = 10 * time.Second

// RetryWithBackoff executes an operation with exponential backoff retry logic.
// It attempts the operation up to maxAttempts times, with delays of
// baseDelay * 2^(attempt-1) between attempts, capped at MaxBackoff.
// Returns nil on success, or the last error if all attempts fail.
// Respects context cancellation.
func RetryWithBackoff(ctx context.Context, operation func() error, maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		slog.Debug("operation failed, will retry", "attempt", attempt, "maxAttempts", maxAttempts, "err", lastErr)

		if attempt == maxAttempts {
			break
		}

		delay := baseDelay << (attempt - 1)
		if delay > MaxBackoff || delay <= 0 {
			delay = MaxBackoff
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
