package submit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMaxRetriesExceeded wraps the last underlying error once the bounded
// attempt budget is spent.
var ErrMaxRetriesExceeded = errors.New("submit: max retries exceeded")

// RetryWithBackoff runs op up to maxAttempts times, sleeping
// baseDelay * 2^(attempt-1) between failures. Cancelling ctx stops the
// waiting immediately.
func RetryWithBackoff(ctx context.Context, maxAttempts int, baseDelay time.Duration, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := op(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("%w (%d attempts): %w", ErrMaxRetriesExceeded, maxAttempts, lastErr)
}
