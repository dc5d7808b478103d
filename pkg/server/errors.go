package server

import (
	"errors"
	"net/http"

	"github.com/tecu23/chess-sessions/pkg/game"
	"github.com/tecu23/chess-sessions/pkg/invitation"
	"github.com/tecu23/chess-sessions/pkg/manager"
	"github.com/tecu23/chess-sessions/pkg/repository"
	"github.com/tecu23/chess-sessions/pkg/rules"
)

// ErrMalformed marks a request body or message that could not be decoded
var ErrMalformed = errors.New("malformed request")

// ErrorBody is the JSON body of every failed HTTP request
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type errorClass struct {
	target error
	status int
	code   string
}

// Expired before NotPending: an expired invitation matches both.
var errorClasses = []errorClass{
	{ErrMalformed, http.StatusBadRequest, "MALFORMED"},
	{repository.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{invitation.ErrExpired, http.StatusConflict, "EXPIRED"},
	{invitation.ErrNotPending, http.StatusConflict, "NOT_PENDING"},
	{game.ErrInvalidState, http.StatusConflict, "INVALID_STATE"},
	{game.ErrNotYourTurn, http.StatusForbidden, "NOT_YOUR_TURN"},
	{game.ErrNotParticipant, http.StatusForbidden, "NOT_PARTICIPANT"},
	{game.ErrNotCoach, http.StatusForbidden, "NOT_COACH"},
	{invitation.ErrNotRecipient, http.StatusForbidden, "NOT_RECIPIENT"},
	{invitation.ErrNotSender, http.StatusForbidden, "NOT_SENDER"},
	{game.ErrIllegalMove, http.StatusUnprocessableEntity, "ILLEGAL_MOVE"},
	{rules.ErrIllegalMove, http.StatusUnprocessableEntity, "ILLEGAL_MOVE"},
	{rules.ErrInvalidPosition, http.StatusUnprocessableEntity, "INVALID_PARAMS"},
	{game.ErrInvalidParams, http.StatusUnprocessableEntity, "INVALID_PARAMS"},
	{invitation.ErrInvalidParams, http.StatusUnprocessableEntity, "INVALID_PARAMS"},
	{invitation.ErrDuplicatePending, http.StatusUnprocessableEntity, "DUPLICATE_PENDING"},
	{manager.ErrRoomCodesExhausted, http.StatusServiceUnavailable, "UNAVAILABLE"},
}

// Classify maps an error to its HTTP status and wire code. Unknown errors
// are internal.
func Classify(err error) (int, string) {
	for _, c := range errorClasses {
		if errors.Is(err, c.target) {
			return c.status, c.code
		}
	}

	return http.StatusInternalServerError, "INTERNAL"
}

// NewErrorBody builds the response for err. Internal errors do not leak
// their message.
func NewErrorBody(err error) (int, ErrorBody) {
	status, code := Classify(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}

	return status, ErrorBody{Error: code, Message: msg}
}
