package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("edit: %w", Clone(ErrCellRejected, "grade 7 is out of range"))

	appErr := FromError(wrapped)
	assert.Equal(t, ErrCellRejected.Code, appErr.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.Status)
	assert.Equal(t, "grade 7 is out of range", appErr.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Nil(t, FromError(nil))
}

func TestIsMatchesClonesByCode(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := CloneWrap(ErrPersistFailed, cause, "")

	assert.True(t, errors.Is(err, ErrPersistFailed))
	assert.False(t, errors.Is(err, ErrFetchFailed))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, ErrPersistFailed.Message+": dial tcp: refused", err.Error())
}
