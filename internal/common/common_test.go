package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewULID_SortableAndUnique(t *testing.T) {
	prev := ""
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, err := NewULID()
		require.NoError(t, err)
		require.Len(t, id, 26)
		assert.False(t, seen[id], "duplicate id %s", id)
		assert.Greater(t, id, prev)
		seen[id] = true
		prev = id
	}
}

func TestInvalidAndNotFoundWrapSentinels(t *testing.T) {
	err := Invalid("prompt must not be empty")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "prompt must not be empty")

	err = NotFound("conversation %d", 7)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "not found: conversation 7", err.Error())
}
