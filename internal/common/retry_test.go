package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/billflow/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetry(t *testing.T) {
	transient := errors.New("connection reset")

	tests := []struct {
		name         string
		failures     []error
		attempts     int
		wantCalls    int
		wantErr      error
		wantMaxRetry bool
	}{
		{
			name:      "succeeds first time",
			attempts:  3,
			wantCalls: 1,
		},
		{
			name:      "succeeds after transient failures",
			failures:  []error{transient, transient},
			attempts:  3,
			wantCalls: 3,
		},
		{
			name:         "gives up after max attempts",
			failures:     []error{transient, transient, transient},
			attempts:     3,
			wantCalls:    3,
			wantErr:      transient,
			wantMaxRetry: true,
		},
		{
			name:      "non-retryable stops immediately",
			failures:  []error{&RetryableError{Err: transient, Retryable: false}},
			attempts:  3,
			wantCalls: 1,
			wantErr:   transient,
		},
		{
			name:      "canceled stops immediately",
			failures:  []error{context.Canceled},
			attempts:  3,
			wantCalls: 1,
			wantErr:   context.Canceled,
		},
		{
			name:      "rate limit is retried",
			failures:  []error{ErrRateLimit},
			attempts:  2,
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := WithRetry(context.Background(), func() error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			}, fastRetry(tt.attempts))

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantMaxRetry, errors.Is(err, ErrMaxRetries))
		})
	}
}

func TestWithRetry_ContextCanceledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := service.RetryOptions{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour}

	calls := 0
	err := WithRetry(ctx, func() error {
		calls++
		cancel()
		return errors.New("try again")
	}, opts)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestUserError(t *testing.T) {
	cause := errors.New("no such file")
	err := NewUserError("gmail is not authorized", cause)

	assert.Equal(t, "gmail is not authorized: no such file", err.Error())
	assert.ErrorIs(t, err, cause)

	var userErr *UserError
	require.ErrorAs(t, err, &userErr)
	assert.Equal(t, "gmail is not authorized", userErr.UserMessage)

	assert.Equal(t, "just a message", NewUserError("just a message", nil).Error())
}

func TestNextWait(t *testing.T) {
	maxDelay := 10 * time.Second

	wait := nextWait(errors.New("flaky"), time.Second, maxDelay)
	assert.GreaterOrEqual(t, wait, time.Second)
	assert.LessOrEqual(t, wait, 1100*time.Millisecond)

	assert.Equal(t, maxDelay, nextWait(ErrRateLimit, time.Second, maxDelay))

	limited := &RetryableError{Err: ErrRateLimit, Retryable: true, RetryAfter: 2 * time.Second}
	assert.Equal(t, 2*time.Second, nextWait(limited, time.Second, maxDelay))

	tooLong := &RetryableError{Err: ErrRateLimit, Retryable: true, RetryAfter: time.Hour}
	assert.Equal(t, maxDelay, nextWait(tooLong, time.Second, maxDelay))

	assert.Equal(t, maxDelay, nextWait(errors.New("flaky"), time.Minute, maxDelay))
}

func TestWithRetry_HonorsRetryAfter(t *testing.T) {
	calls := 0
	start := time.Now()
	err := WithRetry(context.Background(), func() error {
		calls++
		if calls == 1 {
			return &RetryableError{Err: ErrRateLimit, Retryable: true, RetryAfter: 20 * time.Millisecond}
		}
		return nil
	}, service.RetryOptions{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Second})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
