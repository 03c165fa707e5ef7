package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

var (
	// ErrRetryable marks a transient failure.
	ErrRetryable = &walleterr.WalletError{
		Code:     "RETRYABLE_ERROR",
		Message:  "retryable error",
		ExitCode: walleterr.ExitGeneral,
	}

	// ErrRateLimited indicates the provider throttled the call.
	ErrRateLimited = &walleterr.WalletError{
		Code:     "RATE_LIMITED",
		Message:  "rate limited",
		ExitCode: walleterr.ExitGeneral,
	}
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts (including initial)
	BaseDelay   time.Duration // Initial delay between retries
	MaxDelay    time.Duration // Maximum delay between retries
}

// DefaultRetryConfig returns 3 attempts with delays around 250ms and 500ms.
// Wallet providers are local processes; long backoffs only delay errors.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    time.Second,
	}
}

// RetryWithConfig runs operation until it succeeds, fails with a
// non-retryable error, or runs out of attempts.
func RetryWithConfig[T any](ctx context.Context, cfg RetryConfig, operation func() (T, error)) (T, error) {
	var result T
	var err error

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		result, err = operation()
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return result, err
		}

		if attempt < attempts-1 {
			timer := time.NewTimer(calculateDelay(attempt, cfg.BaseDelay, cfg.MaxDelay))
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return result, fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
}

// calculateDelay returns an exponential backoff with jitter in [d/2, d).
func calculateDelay(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	delay := baseDelay * (1 << attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	half := delay / 2
	if half <= 0 {
		return delay
	}
	return half + rand.N(half) //nolint:gosec // G404: jitter does not require cryptographic randomness
}

// IsRetryable returns true if the error should trigger a retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRetryable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ParseRetryAfter parses a Retry-After header in seconds. It returns 0 when
// the header is absent or not a number.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// WrapRetryable marks err as retryable.
func WrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRetryable, err)
}
