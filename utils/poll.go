package utils

import (
	"context"
	"time"
)

// PollUntil evaluates probe up to maxAttempts times, waiting interval between
// attempts, until probe reports true. Exhausting the budget is not an error:
// the bool result distinguishes success from timeout, and the returned error
// is the last probe error seen (nil when probes merely reported false).
// Cancellation of ctx aborts the wait immediately.
func PollUntil(ctx context.Context, interval time.Duration, maxAttempts int, probe func(context.Context) (bool, error)) (bool, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(interval):
			}
		}

		ok, err := probe(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return true, nil
		}
	}

	return false, lastErr
}
