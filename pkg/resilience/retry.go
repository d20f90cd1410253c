package resilience

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/iln-nexus/iln/pkg/core"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool

	// ShouldRetry decides whether an error is worth another attempt.
	// Defaults to core.IsRetryable.
	ShouldRetry func(error) bool
}

// DefaultRetryConfig provides sensible defaults
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
		ShouldRetry:   core.IsRetryable,
	}
}

// Retry executes fn until it succeeds, returns a non-retryable error, the
// attempts run out or ctx is done. The last error stays in the chain.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	shouldRetry := config.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = core.IsRetryable
	}
	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !shouldRetry(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == attempts {
			break
		}

		if attempt > 1 {
			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if config.MaxDelay > 0 && delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}

		wait := delay
		if config.JitterEnabled {
			wait += time.Duration(float64(delay) * 0.1 * math.Sin(float64(attempt)))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", attempts, &retryError{last: lastErr})
}

// retryError keeps both the exhaustion sentinel and the last cause matchable
type retryError struct {
	last error
}

func (e *retryError) Error() string { return e.last.Error() }

func (e *retryError) Unwrap() []error {
	return []error{core.ErrMaxRetriesExceeded, e.last}
}

// RetryWithCircuitBreaker combines retry logic with circuit breaker
func RetryWithCircuitBreaker(ctx context.Context, config *RetryConfig, cb *CircuitBreaker, fn func() error) error {
	return Retry(ctx, config, func() error {
		return cb.Execute(ctx, fn)
	})
}
