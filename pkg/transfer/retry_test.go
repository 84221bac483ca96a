package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	// Packages
	assert "github.com/stretchr/testify/assert"
)

func Test_Retry_Delay(t *testing.T) {
	assert := assert.New(t)
	policy := DefaultRetryPolicy()

	assert.Equal(3, policy.MaxAttempts)
	assert.Equal(2*time.Second, policy.Delay(1))
	assert.Equal(4*time.Second, policy.Delay(2))
	assert.Equal(time.Duration(0), policy.Delay(0))
	assert.False(policy.Exhausted(2))
	assert.True(policy.Exhausted(3))
}

func Test_Retry_Do(t *testing.T) {
	assert := assert.New(t)
	policy := RetryPolicy{MaxAttempts: 3, Unit: time.Millisecond}

	t.Run("Success", func(t *testing.T) {
		var calls int
		err := policy.Do(context.Background(), func(int) error {
			calls++
			return nil
		}, nil)
		assert.NoError(err)
		assert.Equal(1, calls)
	})

	t.Run("Exhausted", func(t *testing.T) {
		var calls []int
		var delays []time.Duration
		failure := errors.New("failure")
		err := policy.Do(context.Background(), func(attempt int) error {
			calls = append(calls, attempt)
			return failure
		}, func(_ int, _ error, delay time.Duration) {
			delays = append(delays, delay)
		})
		assert.ErrorIs(err, failure)
		assert.Equal([]int{1, 2, 3}, calls)
		assert.Equal([]time.Duration{2 * time.Millisecond, 4 * time.Millisecond}, delays)
	})

	t.Run("Recovers", func(t *testing.T) {
		err := policy.Do(context.Background(), func(attempt int) error {
			if attempt < 3 {
				return errors.New("transient")
			}
			return nil
		}, nil)
		assert.NoError(err)
	})

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var calls int
		err := RetryPolicy{MaxAttempts: 5, Unit: time.Hour}.Do(ctx, func(int) error {
			calls++
			cancel()
			return errors.New("transient")
		}, nil)
		assert.ErrorIs(err, context.Canceled)
		assert.Equal(1, calls)
	})
}
