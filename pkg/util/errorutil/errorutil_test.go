package errorutil

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errCause = errors.New("cause")

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(errCause, "TOKEN_EXPIRED", "signing link expired", http.StatusGone, map[string]any{"k": "v"})

	require.ErrorIs(t, err, errCause)
	assert.Equal(t, "TOKEN_EXPIRED", CodeOf(err))
	assert.Equal(t, "signing link expired: cause", err.Error())

	de := ToDomainError(err)
	assert.Equal(t, http.StatusGone, de.HTTPStatus)
	assert.Equal(t, "v", de.Details["k"])
}

func TestToDomainErrorDefaultsToInternal(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))

	de := ToDomainError(errCause)
	assert.Equal(t, "INTERNAL_ERROR", de.Code)
	assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
	require.ErrorIs(t, de, errCause)
	assert.Equal(t, "", CodeOf(errCause))
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, ToDomainError(NewValidationError("bad", nil)).HTTPStatus)
	assert.Equal(t, "handover not found", NewNotFound("handover", nil).Error())
	assert.Equal(t, "UNAUTHORIZED", CodeOf(NewUnauthorized("no")))
	assert.Equal(t, "FORBIDDEN", CodeOf(NewForbidden("no")))
	assert.Equal(t, http.StatusConflict, ToDomainError(NewConflict("dup", nil)).HTTPStatus)
}
