package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tecu23/chess-sessions/pkg/game"
	"github.com/tecu23/chess-sessions/pkg/invitation"
	"github.com/tecu23/chess-sessions/pkg/repository"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("game x: %w", repository.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("%w: %w", invitation.ErrExpired, invitation.ErrNotPending), http.StatusConflict, "EXPIRED"},
		{invitation.ErrNotPending, http.StatusConflict, "NOT_PENDING"},
		{fmt.Errorf("%w: game is over", game.ErrInvalidState), http.StatusConflict, "INVALID_STATE"},
		{game.ErrNotYourTurn, http.StatusForbidden, "NOT_YOUR_TURN"},
		{invitation.ErrNotRecipient, http.StatusForbidden, "NOT_RECIPIENT"},
		{game.ErrNotCoach, http.StatusForbidden, "NOT_COACH"},
		{fmt.Errorf("%w: e5e6", game.ErrIllegalMove), http.StatusUnprocessableEntity, "ILLEGAL_MOVE"},
		{invitation.ErrDuplicatePending, http.StatusUnprocessableEntity, "DUPLICATE_PENDING"},
		{fmt.Errorf("%w: eof", ErrMalformed), http.StatusBadRequest, "MALFORMED"},
		{errors.New("redis down"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			status, code := Classify(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestInternalErrorsAreHidden(t *testing.T) {
	status, body := NewErrorBody(errors.New("dial tcp 10.0.0.1:6379: refused"))

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", body.Message)

	_, body = NewErrorBody(game.ErrNotYourTurn)
	assert.Equal(t, "not your turn", body.Message)
}
