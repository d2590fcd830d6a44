package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusMapping(t *testing.T) {
	cases := map[int]error{
		http.StatusUnauthorized:        Unauthorized("token has expired"),
		http.StatusForbidden:           Forbidden("only teachers can access classes"),
		http.StatusNotFound:            NotFound("class %s not found", "42"),
		http.StatusConflict:            Conflict("already enrolled"),
		http.StatusBadRequest:          Validation("password too short"),
		http.StatusInternalServerError: errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Status(err), err.Error())
	}
}

func TestWrappedErrorsKeepKind(t *testing.T) {
	err := fmt.Errorf("enroll: %w", Conflict("You are already enrolled in this class"))
	assert.True(t, Is(err, KindConflict))
	assert.Equal(t, "You are already enrolled in this class", Message(err))
}

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Internal(cause, "Failed to enroll in class")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "Failed to enroll in class", Message(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal server error", Message(cause))
}
