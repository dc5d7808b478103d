package messages

import (
	"encoding/json"

	"github.com/tecu23/chess-sessions/pkg/chess"
	"github.com/tecu23/chess-sessions/pkg/game"
	"github.com/tecu23/chess-sessions/pkg/invitation"
)

// Inbound message types
const (
	TypeSubscribe    = "SUBSCRIBE"
	TypeUnsubscribe  = "UNSUBSCRIBE"
	TypeSync         = "SYNC"
	TypeMakeMove     = "MAKE_MOVE"
	TypeClaimTimeout = "CLAIM_TIMEOUT"
	TypeResign       = "RESIGN"
	TypePing         = "PING"
)

// InboundMessage is the generic wrapper for messages coming from the client.
// The "type" field tells us the action; "payload" is the data we parse further.
type InboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SessionPayload names the game or training a message is about
type SessionPayload struct {
	SessionID string `json:"sessionId"`
}

// MakeMovePayload represents the payload for making a move during a game
type MakeMovePayload struct {
	SessionID string `json:"sessionId"`
	Move      string `json:"move"`
}

// CreateGameRequest is the body of POST /api/games
type CreateGameRequest struct {
	ColorPreference game.ColorPreference `json:"colorPreference"`
	Mode            game.Mode            `json:"mode"`
	Clock           *chess.TimeControl   `json:"clock,omitempty"`
}

// MoveRequest is the body of move submissions
type MoveRequest struct {
	Move string `json:"move"`
}

// EndGameRequest is the body of the admin end route
type EndGameRequest struct {
	Winner string         `json:"winner"`
	Reason game.EndReason `json:"reason"`
}

// SendInvitationRequest is the body of POST /api/invitations
type SendInvitationRequest struct {
	RecipientID string               `json:"recipientId"`
	Mode        game.Mode            `json:"mode"`
	Clock       *chess.TimeControl   `json:"clock,omitempty"`
	SenderColor game.ColorPreference `json:"senderColor"`
}

// Params converts the request into invitation parameters
func (r SendInvitationRequest) Params() invitation.Params {
	return invitation.Params{Mode: r.Mode, Clock: r.Clock, SenderColor: r.SenderColor}
}

// CreateTrainingRequest is the body of POST /api/trainings
type CreateTrainingRequest struct {
	Position    string `json:"position"`
	Interactive bool   `json:"interactive"`
}

// InteractiveRequest toggles interactive mode
type InteractiveRequest struct {
	Enabled bool `json:"enabled"`
}

// PositionRequest loads a position into a training
type PositionRequest struct {
	Position string `json:"position"`
}
