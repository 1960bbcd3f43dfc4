package retry_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/domain-profiler/internal/retry"
)

func fastConfig(attempts int) retry.Config {
	return retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := retry.Retry(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return driver.ErrBadConn
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("duplicate key value violates unique constraint")
	calls := 0

	err := retry.Retry(context.Background(), fastConfig(5), func() error {
		calls++
		return permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	err := retry.Retry(context.Background(), fastConfig(2), func() error {
		return errors.New("connection refused")
	})

	require.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
}

func TestRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.Retry(ctx, fastConfig(3), func() error { return nil })
	require.ErrorIs(t, err, retry.ErrContextCancelled)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, retry.IsTransient(nil))
	assert.True(t, retry.IsTransient(&pq.Error{Code: "08006"}))
	assert.False(t, retry.IsTransient(&pq.Error{Code: "23505"}))
	assert.True(t, retry.IsTransient(errors.New("read: connection reset by peer")))
	assert.False(t, retry.IsTransient(errors.New("syntax error")))
}
