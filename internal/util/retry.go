// Package util provides shared utility functions for cowfs.
package util

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"

	"cowfs/internal/common"
)

// lockPollInterval is the delay between attempts to take a held lock.
const lockPollInterval = 100 * time.Millisecond

// LockRetryOptions returns retry options for acquiring an advisory lock.
// Polls at a fixed interval until timeout elapses, retrying only ErrLocked.
func LockRetryOptions(ctx context.Context, timeout time.Duration) []retry.Option {
	attempts := uint(timeout / lockPollInterval)
	if attempts < 1 {
		attempts = 1
	}
	return []retry.Option{
		retry.Attempts(attempts),
		retry.Delay(lockPollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(IsLocked),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	}
}

// RetryWithResult executes fn with retry logic and returns the result.
// Cancelling ctx stops further attempts.
func RetryWithResult[T any](ctx context.Context, fn func() (T, error), opts ...retry.Option) (T, error) {
	return retry.DoWithData(fn, append(opts, retry.Context(ctx))...)
}

// Common retry predicates

// IsLocked returns true if the error indicates a lock held by another process.
func IsLocked(err error) bool {
	return errors.Is(err, common.ErrLocked)
}
