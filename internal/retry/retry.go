// Package retry wraps fallible page operations with bounded attempts,
// an exponential delay table and per-failure diagnostic capture.
//
// Terminal-but-expected states (sold out, purchase limit) must be
// returned by the action as ordinary values, not errors; only errors
// are retried.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// backoffTable holds the delay before each re-attempt; attempts beyond
// the table reuse the last entry.
var backoffTable = []time.Duration{
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
	800 * time.Millisecond,
	1600 * time.Millisecond,
}

// CaptureFunc requests a diagnostic screenshot with a semantic label.
type CaptureFunc func(label string)

// ExhaustedError reports that every attempt failed.
type ExhaustedError struct {
	Label    string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: exhausted %d attempts: %v", e.Label, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Do invokes fn up to maxAttempts times. Every failed attempt requests
// one capture labeled with the attempt number; delays between attempts
// follow the backoff table. Context cancellation stops retrying
// immediately.
func Do(ctx context.Context, maxAttempts int, label string, capture CaptureFunc, fn func(context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	logger := slog.Default().With("component", "retry", "label", label)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		logger.Warn("attempt failed", "attempt", attempt, "max", maxAttempts, "error", lastErr)
		if capture != nil {
			capture(fmt.Sprintf("%s_attempt_%d", sanitizeLabel(label), attempt))
		}

		if attempt < maxAttempts {
			if err := sleep(ctx, delayFor(attempt)); err != nil {
				return err
			}
		}
	}

	return &ExhaustedError{Label: label, Attempts: maxAttempts, Last: lastErr}
}

// delayFor returns the backoff before the attempt following attempt n.
func delayFor(n int) time.Duration {
	if n > len(backoffTable) {
		n = len(backoffTable)
	}
	return backoffTable[n-1]
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// sanitizeLabel keeps labels filesystem- and log-friendly.
func sanitizeLabel(label string) string {
	var b strings.Builder
	b.Grow(len(label))
	lastUnderscore := true
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}
