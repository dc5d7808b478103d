package game

import (
	"errors"
	"fmt"
)

// Failures reported by the session state machines. They are expected outcomes
// of user actions and never affect other sessions.
var (
	ErrInvalidState   = errors.New("invalid state")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrIllegalMove    = errors.New("illegal move")
	ErrNotParticipant = errors.New("not a participant")
	ErrInvalidParams  = errors.New("invalid parameters")
)

// invariant panics when a condition that the state machine guarantees does not
// hold. Reaching it is a programming error, not a user error.
func invariant(ok bool, format string, args ...any) {
	if !ok {
		panic(fmt.Sprintf("game invariant violated: "+format, args...))
	}
}
