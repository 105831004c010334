package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		MaxAttempts: 3,
		InitialWait: time.Microsecond,
		MaxWait:     time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestDoRetriesRetryable(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return Retryable(errors.New("transient"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad request")
	attempts := 0
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestDoExhaustsAttempts(t *testing.T) {
	transient := errors.New("transient")
	attempts := 0
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		return Retryable(transient)
	})
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, attempts)
}

func TestDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, fastConfig(), func() error {
		return Retryable(errors.New("transient"))
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	got, err := DoWithResult(context.Background(), fastConfig(), func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", Retryable(errors.New("transient"))
		}
		return "value", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "value", got)
	assert.Equal(t, 2, attempts)
}

func TestDoWithResultPermanentError(t *testing.T) {
	permanent := errors.New("bad request")
	got, err := DoWithResult(context.Background(), fastConfig(), func() (int, error) {
		return 7, permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Zero(t, got)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Retryable(errors.New("x"))))
	assert.False(t, IsRetryable(errors.New("x")))
	assert.NoError(t, Retryable(nil))
}
