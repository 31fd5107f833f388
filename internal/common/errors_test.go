package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorDefinitions(t *testing.T) {
	t.Parallel()

	// Verify all errors are defined and unique
	errs := []error{
		ErrNotFound,
		ErrExists,
		ErrAlreadyOpen,
		ErrNotOpen,
		ErrBlockMissing,
		ErrBlockTooLarge,
		ErrCorruptMetadata,
		ErrNoHistory,
		ErrVersionNotFound,
		ErrInvalidName,
		ErrInvalidOffset,
		ErrIO,
		ErrLocked,
	}

	t.Run("all errors are non-nil", func(t *testing.T) {
		t.Parallel()
		for i, err := range errs {
			require.NotNil(t, err, "error at index %d should not be nil", i)
		}
	})

	t.Run("all error messages are unique", func(t *testing.T) {
		t.Parallel()
		seen := make(map[string]bool)
		for _, err := range errs {
			msg := err.Error()
			assert.False(t, seen[msg], "duplicate error message: %s", msg)
			seen[msg] = true
		}
	})
}

func TestErrorIs(t *testing.T) {
	t.Parallel()

	t.Run("wrapped with %w matches", func(t *testing.T) {
		t.Parallel()
		err := fmt.Errorf("load chain %q: %w", "notes", ErrNotFound)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NotErrorIs(t, err, ErrExists)
	})

	t.Run("string concatenation does not match", func(t *testing.T) {
		t.Parallel()
		wrappedErr := errors.New("wrapped: " + ErrBlockMissing.Error())
		assert.False(t, errors.Is(wrappedErr, ErrBlockMissing))
	})
}
