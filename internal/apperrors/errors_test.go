package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("formats code and message", func(t *testing.T) {
		err := NotFound("Call session")
		assert.Equal(t, "NOT_FOUND: Call session not found", err.Error())
	})

	t.Run("includes cause when wrapped", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Database(cause)
		assert.Contains(t, err.Error(), "connection refused")
		assert.ErrorIs(t, err, cause)
	})

	t.Run("unwraps through fmt wrapping", func(t *testing.T) {
		inner := Gone("Partner stopped matching")
		wrapped := fmt.Errorf("drain signals: %w", inner)

		appErr, ok := AsAppError(wrapped)
		assert.True(t, ok)
		assert.Equal(t, ErrCodeGone, appErr.Code)
	})
}

func TestGetCode(t *testing.T) {
	t.Run("returns code for app errors", func(t *testing.T) {
		assert.Equal(t, ErrCodeRateLimitExceeded, GetCode(RateLimitExceeded()))
		assert.Equal(t, ErrCodeConflict, GetCode(Conflict("pair already exists")))
	})

	t.Run("defaults to internal for plain errors", func(t *testing.T) {
		assert.Equal(t, ErrCodeInternal, GetCode(errors.New("boom")))
	})
}

func TestIsAppError(t *testing.T) {
	assert.True(t, IsAppError(Unauthorized("no token")))
	assert.False(t, IsAppError(errors.New("plain")))
	assert.False(t, IsAppError(nil))
}
