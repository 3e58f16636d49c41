package invoke

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tberrors "toolbridge/pkg/errors"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRetrier returns a retrier whose sleeps complete instantly while
// recording the requested delays.
func newTestRetrier(cfg RetryConfig, delays *[]time.Duration) *Retrier {
	r := NewRetrier(cfg, newTestLogger())
	r.sleep = func(ctx context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	}
	return r
}

func TestBackoffCurve(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 1*time.Second, cfg.Backoff(1))
	assert.Equal(t, 2*time.Second, cfg.Backoff(2))
	assert.Equal(t, 4*time.Second, cfg.Backoff(3))
	assert.Equal(t, 8*time.Second, cfg.Backoff(4))
	// Capped.
	assert.Equal(t, 10*time.Second, cfg.Backoff(5))
	assert.Equal(t, 10*time.Second, cfg.Backoff(20))
}

func TestExecuteSucceedsFirstAttempt(t *testing.T) {
	r := newTestRetrier(DefaultRetryConfig(), nil)

	var calls int
	value, attempts, _, err := r.Execute(context.Background(), time.Second, func(ctx context.Context) (interface{}, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestExecuteRetriesRetryableErrors(t *testing.T) {
	var delays []time.Duration
	r := newTestRetrier(DefaultRetryConfig(), &delays)

	var calls int
	value, attempts, _, err := r.Execute(context.Background(), time.Second, func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, tberrors.NewConnection(assert.AnError)
		}
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", value)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, delays)
}

func TestExecuteStopsOnNonRetryableError(t *testing.T) {
	r := newTestRetrier(DefaultRetryConfig(), nil)

	var calls int
	_, attempts, _, err := r.Execute(context.Background(), time.Second, func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, tberrors.New(tberrors.ErrorTypeValidation, "bad arguments")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)

	var tbErr *tberrors.Error
	require.ErrorAs(t, err, &tbErr)
	assert.Equal(t, tberrors.ErrorTypeValidation, tbErr.Type)
}

func TestExecuteExhaustsAttemptBudget(t *testing.T) {
	cfg := DefaultRetryConfig()
	r := newTestRetrier(cfg, nil)

	var calls int
	_, attempts, _, err := r.Execute(context.Background(), time.Second, func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, tberrors.NewConnection(assert.AnError)
	})
	require.Error(t, err)
	assert.Equal(t, cfg.MaxRetries+1, calls)
	assert.Equal(t, cfg.MaxRetries+1, attempts)
	assert.Contains(t, err.Error(), "failed after 4 attempts")

	// The original error remains reachable through the chain.
	var tbErr *tberrors.Error
	require.ErrorAs(t, err, &tbErr)
	assert.Equal(t, tberrors.ErrorTypeConnection, tbErr.Type)
}

func TestExecuteZeroRetriesMeansSingleAttempt(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = 0
	r := newTestRetrier(cfg, nil)

	var calls int
	_, attempts, _, err := r.Execute(context.Background(), time.Second, func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, tberrors.NewConnection(assert.AnError)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestExecuteStopsWhenParentContextCancelled(t *testing.T) {
	r := NewRetrier(DefaultRetryConfig(), newTestLogger())
	r.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	_, _, _, err := r.Execute(ctx, time.Second, func(ctx context.Context) (interface{}, error) {
		calls++
		cancel()
		return nil, tberrors.NewConnection(assert.AnError)
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestExecuteMeasuresFinalAttempt(t *testing.T) {
	r := newTestRetrier(DefaultRetryConfig(), nil)

	_, _, elapsed, err := r.Execute(context.Background(), time.Second, func(ctx context.Context) (interface{}, error) {
		time.Sleep(10 * time.Millisecond)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
}
