package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2}

	assert.Equal(t, time.Second, policy.NextDelay(0))
	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	assert.Equal(t, 5*time.Second, policy.NextDelay(4))

	var zero RetryPolicy
	assert.Equal(t, time.Second, zero.NextDelay(1))
	assert.Equal(t, 2*time.Second, zero.NextDelay(2))
	assert.Equal(t, 1, zero.Attempts())
}

func TestRetryPolicyDo(t *testing.T) {
	fast := RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	boom := errors.New("smtp: 421 try later")

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := fast.Do(context.Background(), func(int) error {
			calls++
			if calls < 3 {
				return boom
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns last error", func(t *testing.T) {
		var seen []int
		err := fast.Do(context.Background(), func(attempt int) error {
			seen = append(seen, attempt)
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []int{1, 2, 3}, seen)
	})

	t.Run("stops on cancel", func(t *testing.T) {
		slow := RetryPolicy{MaxRetries: 5, InitialDelay: time.Hour}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		err := slow.Do(ctx, func(int) error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
