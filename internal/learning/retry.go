package learning

import (
	"context"
	"time"

	"github.com/rendis/adaptflow/internal/tuning"
)

// ComputeBackoff calculates the delay before retry attempt+1 (attempt is
// zero-based). Supports none, constant, linear, and exponential backoff
// with an optional max_delay cap.
func ComputeBackoff(policy tuning.RetryPolicy, attempt int) time.Duration {
	base := policy.Delay.Std()
	if base <= 0 {
		return 0
	}

	var delay time.Duration
	switch policy.Backoff {
	case "exponential":
		multiplier := time.Duration(1)
		for i := 0; i < attempt; i++ {
			multiplier *= 2
			if policy.MaxDelay > 0 && base*multiplier >= policy.MaxDelay.Std() {
				break
			}
		}
		delay = base * multiplier
	case "linear":
		delay = base * time.Duration(attempt+1)
	default: // "none", "constant" or empty: no growth
		delay = base
	}

	if max := policy.MaxDelay.Std(); max > 0 && delay > max {
		delay = max
	}
	return delay
}

// WaitForBackoff sleeps for delay or returns early with ctx.Err() if the
// context is cancelled.
func WaitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
