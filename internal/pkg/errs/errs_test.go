package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewError(t *testing.T) {
	t.Run("taxonomy statuses", func(t *testing.T) {
		tests := []struct {
			code   int
			status int
		}{
			{ErrContentEmpty, http.StatusBadRequest},
			{ErrUnauthorized, http.StatusUnauthorized},
			{ErrForbidden, http.StatusForbidden},
			{ErrChannelNotFound, http.StatusNotFound},
			{ErrAlreadyMember, http.StatusConflict},
			{ErrChannelNameTaken, http.StatusBadRequest},
			{ErrUnknown, http.StatusInternalServerError},
		}
		for _, tt := range tests {
			err := NewError(tt.code)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.status, err.Status, "code %d", tt.code)
		}
	})

	t.Run("formats templated message", func(t *testing.T) {
		err := NewError(ErrContentTooLong, 1000)
		assert.Equal(t, "Message must be at most 1000 characters.", err.Message)
	})

	t.Run("ignores details without placeholders", func(t *testing.T) {
		err := NewError(ErrForbidden, "extra")
		assert.Equal(t, errorMap[ErrForbidden].Message, err.Message)
	})

	t.Run("unknown code degrades to ErrUnknown", func(t *testing.T) {
		err := NewError(987654)
		assert.Equal(t, ErrUnknown, err.Code)
		assert.Equal(t, http.StatusInternalServerError, err.Status)
	})

	t.Run("returned errors are independent copies", func(t *testing.T) {
		a := NewError(ErrContentTooLong, 10)
		b := NewError(ErrContentTooLong, 20)
		assert.NotEqual(t, a.Message, b.Message)
	})
}

func TestAsAndHasCode(t *testing.T) {
	wrapped := fmt.Errorf("membership.Join: %w", NewError(ErrAlreadyMember))

	require.True(t, HasCode(wrapped, ErrAlreadyMember))
	assert.False(t, HasCode(wrapped, ErrNotMember))
	assert.False(t, HasCode(errors.New("plain"), ErrUnknown))

	assert.Equal(t, ErrAlreadyMember, As(wrapped).Code)
	assert.Equal(t, ErrUnknown, As(errors.New("db down")).Code)
	assert.Nil(t, As(nil))
}
