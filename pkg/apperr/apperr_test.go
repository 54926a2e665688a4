package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	err := Conflict("project %s is already assigned", "P-100")
	wrapped := fmt.Errorf("assign: %w", err)

	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, "project P-100 is already assigned", err.Error())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindInternal, cause, "save project")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "save project: disk full", err.Error())
	assert.Nil(t, Wrap(KindInternal, nil, "noop"))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "validation", KindValidation.String())
}
