package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Second, MaxBackoff: 10 * time.Second}

	assert.Equal(t, time.Second, p.Backoff(0))
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 8*time.Second, p.Backoff(4))
	assert.Equal(t, 10*time.Second, p.Backoff(5))
	assert.Equal(t, 10*time.Second, p.Backoff(60))
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.False(t, p.Exhausted(DefaultMaxAttempts-1))
	assert.True(t, p.Exhausted(DefaultMaxAttempts))
}

func TestDeadLetter_Transitions(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("requeue dead entry", func(t *testing.T) {
		d := &DeadLetter{Status: DeadLetterStatusDead}
		require.NoError(t, d.MarkRequeued(now))
		assert.Equal(t, DeadLetterStatusRequeued, d.Status)
		require.NotNil(t, d.RequeuedAt)

		err := d.MarkRequeued(now)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("discard dead entry", func(t *testing.T) {
		d := &DeadLetter{Status: DeadLetterStatusDead}
		require.NoError(t, d.MarkDiscarded(now))
		assert.Equal(t, DeadLetterStatusDiscarded, d.Status)
		assert.ErrorIs(t, d.MarkRequeued(now), ErrInvalidState)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(assert.AnError))
	assert.True(t, IsRetryable(ErrConcurrencyConflict))
	assert.True(t, IsRetryable(WrapDomainError(CodeUnavailable, "provider down", assert.AnError)))
	assert.False(t, IsRetryable(ErrInvalidInput))
	assert.False(t, IsRetryable(ErrInvalidState))
	assert.False(t, IsRetryable(nil))
}
