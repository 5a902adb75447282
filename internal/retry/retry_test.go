package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/JakeFAU/riftlens/internal/riftlens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialPolicy_ShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialPolicy(Config{MaxAttempts: 2})
	unavailable := fmt.Errorf("match detail: %w", riftlens.ErrUnavailable)

	assert.False(t, p.ShouldRetry(nil, 0))
	assert.True(t, p.ShouldRetry(unavailable, 0))
	assert.True(t, p.ShouldRetry(unavailable, 1))
	assert.False(t, p.ShouldRetry(unavailable, 2))
	assert.False(t, p.ShouldRetry(riftlens.ErrNotFound, 0))
	assert.False(t, p.ShouldRetry(context.Canceled, 0))
	assert.False(t, p.ShouldRetry(errors.New("boom"), 0))
}

func TestExponentialPolicy_BackoffBounded(t *testing.T) {
	t.Parallel()

	p := NewExponentialPolicy(Config{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond})
	for attempt := 0; attempt < 6; attempt++ {
		d := p.Backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 40*time.Millisecond)
	}
}

func TestDo_RetriesUnavailable(t *testing.T) {
	t.Parallel()

	p := NewExponentialPolicy(Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
	calls := 0
	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", riftlens.ErrUnavailable
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDo_NotFoundIsFinal(t *testing.T) {
	t.Parallel()

	p := NewExponentialPolicy(Config{MaxAttempts: 3, BaseDelay: time.Millisecond})
	calls := 0
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, riftlens.ErrNotFound
	})
	require.ErrorIs(t, err, riftlens.ErrNotFound)
	assert.Equal(t, 1, calls)
}

func TestDo_NilPolicyCallsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), nil, func(context.Context) (int, error) {
		calls++
		return 0, riftlens.ErrUnavailable
	})
	require.ErrorIs(t, err, riftlens.ErrUnavailable)
	assert.Equal(t, 1, calls)
}

func TestDo_CanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	p := NewExponentialPolicy(Config{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := Do(ctx, p, func(context.Context) (int, error) {
		return 0, riftlens.ErrUnavailable
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
