package retry

import (
	"context"
	"time"
)

// Do runs fn, retrying on error according to opts until it succeeds, the
// retry budget is exhausted, or ctx is cancelled.
func Do(ctx context.Context, fn func() error, opts ...Options) error {
	options := NewSetOptions(opts...)

	backoff := options.BackoffDurationType
	var lastErr error

	for attempt := 0; options.InfiniteRetry || attempt < options.RetryCount; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if options.ExponentialBackoff {
			backoff = time.Duration(float64(backoff) * options.BackoffFactor)
			if backoff > options.MaxBackoff {
				backoff = options.MaxBackoff
			}
		} else {
			backoff *= time.Duration(options.BackoffMultiplier)
		}
	}

	return lastErr
}
