package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"library-sync/core/errs"
	"library-sync/core/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) retry.Policy {
	return retry.New(retry.Config{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Multiplier:  2,
		MaxDelay:    5 * time.Millisecond,
		Jitter:      true,
	})
}

func TestPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicy_ExhaustionWrapsLastCause(t *testing.T) {
	cause := errors.New("disk I/O error")
	calls := 0
	err := fastPolicy(4).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)

	var maxErr *errs.MaxRetriesExceeded
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 4, maxErr.Attempts)
	assert.ErrorIs(t, err, cause)
}

func TestPolicy_NeverRetriesDeterministicFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"Validation", errs.NewValidation(errs.Violation{Field: "status", Reason: "unknown"})},
		{"NotFound", &errs.NotFoundError{ID: "x"}},
		{"Duplicate", &errs.DuplicateError{ID: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := fastPolicy(5).Do(context.Background(), func(ctx context.Context) error {
				calls++
				return tt.err
			})
			assert.Equal(t, 1, calls)
			assert.Same(t, tt.err, err)
		})
	}
}

func TestPolicy_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := fastPolicy(10).Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPolicy_OnRetryReportsAttempts(t *testing.T) {
	p := fastPolicy(3)
	var seen []int
	p.OnRetry = func(attempt int, err error, wait time.Duration) {
		seen = append(seen, attempt)
	}

	_ = p.Do(context.Background(), func(ctx context.Context) error {
		return errors.New("transient")
	})

	assert.Equal(t, []int{1, 2}, seen)
}

func TestNew_Defaults(t *testing.T) {
	p := retry.New(retry.Config{})
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, p.BaseDelay)
	assert.Equal(t, 2.0, p.Multiplier)
	assert.Equal(t, 100*time.Millisecond, p.MaxDelay)
}
