package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct code", func(t *testing.T) {
		err := New(CodeInvalidTransition, "nope")
		assert.True(t, HasCode(err, CodeInvalidTransition))
		assert.False(t, HasCode(err, CodeAlreadyTerminal))
	})

	t.Run("matches code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeConflictingRequest, "dup"))
		assert.True(t, HasCode(err, CodeConflictingRequest))
	})

	t.Run("matches inner code of nested coded errors", func(t *testing.T) {
		inner := New(CodeAlreadyResolved, "resolved")
		err := Wrap(inner, CodeInternal, "failed")
		assert.True(t, HasCode(err, CodeInternal))
		assert.True(t, HasCode(err, CodeAlreadyResolved))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})

	t.Run("uncoded errors have no code", func(t *testing.T) {
		err := errors.New("plain")
		assert.False(t, HasCode(err, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(err))
		assert.Equal(t, "internal error", Message(err))
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "x"))
	})

	t.Run("keeps cause reachable", func(t *testing.T) {
		cause := errors.New("disk full")
		err := Wrap(cause, CodeInternal, "save mandate")
		require.ErrorIs(t, err, cause)
		assert.Equal(t, "internal: save mandate: disk full", err.Error())
	})
}
