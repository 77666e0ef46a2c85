package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, "flaky", nil, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAndCapturesEveryAttempt(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	var captures []string
	err := Do(context.Background(), 4, "always fails", func(label string) {
		captures = append(captures, label)
	}, func(context.Context) error {
		calls++
		return boom
	})

	require.Error(t, err)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 4, calls)
	// one capture per failed attempt, including the last
	require.Len(t, captures, 4)
	assert.Equal(t, "always_fails_attempt_1", captures[0])
	assert.Equal(t, "always_fails_attempt_4", captures[3])
}

func TestDoFirstTrySuccessSkipsCapture(t *testing.T) {
	captured := 0
	err := Do(context.Background(), 3, "ok", func(string) { captured++ }, func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, captured)
}

func TestDoRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, 10, "cancelled", nil, func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDelayForClampsToLastEntry(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, delayFor(1))
	assert.Equal(t, 1600*time.Millisecond, delayFor(5))
	assert.Equal(t, 1600*time.Millisecond, delayFor(50))
}

func TestSanitizeLabel(t *testing.T) {
	assert.Equal(t, "add_to_cart", sanitizeLabel("add to cart"))
	assert.Equal(t, "find_product_2", sanitizeLabel("find/product #2!"))
}
