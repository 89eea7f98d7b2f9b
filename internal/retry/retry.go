// Package retry implements the bounded-attempt, exponential-backoff retry
// utility referenced throughout spec.md §7 as "withRetry". Numeric policy
// is left to the caller (maxAttempts, base backoff) per the Open Question
// in spec.md §9 — this package only fixes the shape.
package retry

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// Policy configures a retry loop.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseBackoff is the delay before the second attempt; it doubles on
	// every subsequent attempt.
	BaseBackoff time.Duration
	// MaxBackoff caps the computed delay.
	MaxBackoff time.Duration
}

// DefaultPolicy mirrors the teacher's OrchestratorConfig defaults
// (MaxRetries: 3, RetryBackoff: 1s).
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseBackoff: time.Second,
		MaxBackoff:  10 * time.Second,
	}
}

// Do runs fn up to p.MaxAttempts times, sleeping with exponential backoff
// plus jitter between attempts. It stops early and returns nil on the
// first success, and returns the last error once attempts are exhausted
// or ctx is cancelled. name is used only for structured logging.
func Do(ctx context.Context, p Policy, name string, fn func(attempt int) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}

		if attempt == p.MaxAttempts {
			break
		}

		delay := backoffFor(p, attempt)
		slog.Warn("retry: attempt failed, backing off",
			"operation", name,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"delay_ms", delay.Milliseconds(),
			"error", lastErr,
		)

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

func backoffFor(p Policy, attempt int) time.Duration {
	base := p.BaseBackoff
	if base <= 0 {
		base = time.Second
	}
	delay := base << (attempt - 1) //nolint:gosec // attempt is small and bounded by MaxAttempts
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 4 + 1)) //nolint:gosec // non-cryptographic jitter
	return delay + jitter
}
