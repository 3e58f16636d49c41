package invoke

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"toolbridge/internal/log"
	tberrors "toolbridge/pkg/errors"
)

// RetryConfig configures retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries).
	MaxRetries int `yaml:"max_retries"`

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier is the backoff multiplier (typically 2.0 for exponential).
	Multiplier float64 `yaml:"multiplier"`

	// Jitter adds randomness to prevent thundering herd (0.0-1.0).
	// Zero keeps the backoff curve deterministic.
	Jitter float64 `yaml:"jitter"`
}

// DefaultRetryConfig returns the default retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0,
	}
}

// Backoff computes the delay before the given attempt (1-based for the
// first retry). The exponent is attempt-1, so the first retry waits exactly
// InitialDelay; the curve is non-decreasing and capped at MaxDelay.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	backoff := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))

	if backoff > float64(c.MaxDelay) {
		backoff = float64(c.MaxDelay)
	}

	if c.Jitter > 0 {
		jitterAmount := backoff * c.Jitter
		backoff += (rand.Float64() * 2 * jitterAmount) - jitterAmount
	}

	return time.Duration(backoff)
}

// AttemptFunc is one adapter call. The context carries the per-attempt
// deadline; implementations must release any resource they acquired on
// every exit path.
type AttemptFunc func(ctx context.Context) (interface{}, error)

// Retrier owns the attempt loop: backoff, timeout-guarded call,
// classification, continue-or-stop.
type Retrier struct {
	config RetryConfig
	logger *slog.Logger

	// sleep is swapped out in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a Retrier with the given configuration.
func NewRetrier(config RetryConfig, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		config: config,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Execute runs call until it succeeds, fails non-retryably, or the attempt
// budget is exhausted. Total attempts never exceed MaxRetries+1; the count
// is returned so callers can report retries without sharing state with the
// attempt goroutine. The returned duration is the execution time of the
// final attempt.
func (r *Retrier) Execute(ctx context.Context, timeout time.Duration, call AttemptFunc) (interface{}, int, time.Duration, error) {
	var lastErr error
	var lastElapsed time.Duration

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.config.Backoff(attempt)
			r.logger.Debug("retrying after backoff",
				slog.Int(log.AttemptKey, attempt),
				log.Duration("backoff", delay.Milliseconds()))
			if err := r.sleep(ctx, delay); err != nil {
				return nil, attempt, lastElapsed, err
			}
		}

		start := time.Now()
		value, err := runWithTimeout(ctx, timeout, call)
		lastElapsed = time.Since(start)

		if err == nil {
			return value, attempt + 1, lastElapsed, nil
		}
		lastErr = err

		if !tberrors.Classify(err) {
			return nil, attempt + 1, lastElapsed, err
		}

		if ctx.Err() != nil {
			return nil, attempt + 1, lastElapsed, ctx.Err()
		}

		r.logger.Warn("attempt failed with retryable error",
			slog.Int(log.AttemptKey, attempt),
			log.Error(err))
	}

	return nil, r.config.MaxRetries + 1, lastElapsed, fmt.Errorf("failed after %d attempts: %w", r.config.MaxRetries+1, lastErr)
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
