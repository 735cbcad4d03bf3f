package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsPoster/internal/domain"
)

func TestDoStopsOnSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	attempts, err := Do(context.Background(), Exponential(5, time.Millisecond, 0, 0), func(context.Context, int) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("dial: %w", domain.ErrNetwork)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()

	attempts, err := Do(context.Background(), Exponential(3, time.Millisecond, 0, 0.5), func(context.Context, int) error {
		return domain.ErrNetwork
	})

	require.ErrorIs(t, err, ErrMaxAttemptsExceeded)
	require.ErrorIs(t, err, domain.ErrNetwork)
	assert.Equal(t, 3, attempts)
}

func TestDoDoesNotRetryFatal(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), Exponential(5, time.Millisecond, 0, 0), func(context.Context, int) error {
		calls++
		return domain.Permanent(fmt.Errorf("status 404: %w", domain.ErrNetwork))
	})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMaxAttemptsExceeded)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	_, err := Do(ctx, Exponential(5, time.Hour, 0, 0), func(context.Context, int) error {
		cancel()
		return domain.ErrNetwork
	})

	require.ErrorIs(t, err, context.Canceled)
}

func TestPolicyDelay(t *testing.T) {
	t.Parallel()

	exp := Exponential(5, 100*time.Millisecond, 300*time.Millisecond, 0)
	assert.Equal(t, 100*time.Millisecond, exp.Delay(1))
	assert.Equal(t, 200*time.Millisecond, exp.Delay(2))
	assert.Equal(t, 300*time.Millisecond, exp.Delay(3))

	lin := LinearBackoff(3, time.Second)
	assert.Equal(t, time.Second, lin.Delay(1))
	assert.Equal(t, 2*time.Second, lin.Delay(2))
}

func TestOnRetryCallback(t *testing.T) {
	t.Parallel()

	var seen []int
	policy := LinearBackoff(3, time.Millisecond)
	policy.OnRetry = func(attempt int, _ time.Duration, _ error) { seen = append(seen, attempt) }

	_, err := Do(context.Background(), policy, func(context.Context, int) error {
		return errors.Join(domain.ErrGeneration)
	})

	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, seen)
}
