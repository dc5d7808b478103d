package messages

import (
	"time"

	"github.com/tecu23/chess-sessions/pkg/chess"
	"github.com/tecu23/chess-sessions/pkg/game"
	"github.com/tecu23/chess-sessions/pkg/invitation"
)

// Outbound event names
const (
	EventConnected           = "CONNECTED"
	EventMove                = "MOVE"
	EventGameState           = "GAME_STATE"
	EventPlayerJoined        = "PLAYER_JOINED"
	EventClockState          = "CLOCK_STATE"
	EventGameOver            = "GAME_OVER"
	EventTrainingState       = "TRAINING_STATE"
	EventError               = "ERROR"
	EventNewInvitation       = "NEW_INVITATION"
	EventInvitationAccepted  = "INVITATION_ACCEPTED"
	EventInvitationDeclined  = "INVITATION_DECLINED"
	EventInvitationExpired   = "INVITATION_EXPIRED"
	EventInvitationCancelled = "INVITATION_CANCELLED"
	EventGameReady           = "GAME_READY"
	EventPong                = "PONG"
)

// OutboundMessage is how we wrap responses before sending
// them to the client
type OutboundMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
	PlayerID     string `json:"playerId"`
}

// ClockStatePayload is the wire form of a clock snapshot. Remaining values are
// the stored ones as of LastMoveTimestamp; receivers extrapolate the active
// side themselves. Timestamps are unix milliseconds, zero before the first
// move.
type ClockStatePayload struct {
	SessionID         string      `json:"sessionId"`
	Mode              game.Mode   `json:"mode"`
	Base              int64       `json:"base"`
	Increment         int64       `json:"increment"`
	WhiteRemaining    int64       `json:"whiteRemaining"`
	BlackRemaining    int64       `json:"blackRemaining"`
	LastMoveTimestamp int64       `json:"lastMoveTimestamp"`
	ActiveSide        chess.Color `json:"activeSide"`
	Running           bool        `json:"running"`
	ServerTime        int64       `json:"serverTime"`
	Version           int64       `json:"version"`
}

// State rebuilds a clock state from the snapshot. offset is added to the
// server timestamps to move them onto the receiver's clock. TRAINING
// snapshots return nil, which every clock function treats as unlimited.
func (p ClockStatePayload) State(offset time.Duration) *chess.ClockState {
	if p.Mode != game.ModeTimed {
		return nil
	}

	s := &chess.ClockState{
		BaseMs:      p.Base,
		IncrementMs: p.Increment,
		WhiteMs:     p.WhiteRemaining,
		BlackMs:     p.BlackRemaining,
		Active:      p.ActiveSide,
		Stopped:     !p.Running && p.LastMoveTimestamp != 0,
	}
	if p.LastMoveTimestamp != 0 {
		s.LastMoveAt = time.UnixMilli(p.LastMoveTimestamp).Add(offset)
	}

	return s
}

// GameStatePayload is the full snapshot of a game session
type GameStatePayload struct {
	SessionID    string             `json:"sessionId"`
	RoomCode     string             `json:"roomCode"`
	Status       game.Status        `json:"status"`
	Mode         game.Mode          `json:"mode"`
	HostID       string             `json:"hostId"`
	GuestID      string             `json:"guestId,omitempty"`
	WhiteID      string             `json:"whiteId,omitempty"`
	BlackID      string             `json:"blackId,omitempty"`
	Position     string             `json:"position"`
	Moves        []string           `json:"moves"`
	SideToMove   chess.Color        `json:"sideToMove"`
	Clock        *ClockStatePayload `json:"clock,omitempty"`
	Result       *game.Result       `json:"result,omitempty"`
	InvitationID string             `json:"invitationId,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
	Version      int64              `json:"version"`
}

type MovePayload struct {
	SessionID string `json:"sessionId"`
	PlayerID  string `json:"playerId"`
	Move      string `json:"move"`
	UCI       string `json:"uci"`
	Position  string `json:"position"`
	Version   int64  `json:"version"`
}

type PlayerJoinedPayload struct {
	SessionID string      `json:"sessionId"`
	PlayerID  string      `json:"playerId"`
	Color     chess.Color `json:"color,omitempty"`
}

type GameOverPayload struct {
	SessionID string         `json:"sessionId"`
	Status    game.Status    `json:"status"`
	Winner    chess.Color    `json:"winner,omitempty"`
	Reason    game.EndReason `json:"reason"`
	Version   int64          `json:"version"`
}

// TrainingStatePayload is the full snapshot of a training room
type TrainingStatePayload struct {
	SessionID       string              `json:"sessionId"`
	RoomCode        string              `json:"roomCode"`
	CoachID         string              `json:"coachId"`
	Participants    []string            `json:"participants"`
	StartPosition   string              `json:"startPosition"`
	Position        string              `json:"position"`
	Moves           []string            `json:"moves"`
	InteractiveMode bool                `json:"interactiveMode"`
	Status          game.TrainingStatus `json:"status"`
	UpdatedAt       time.Time           `json:"updatedAt"`
	Version         int64               `json:"version"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// InvitationPayload carries an invitation with its effective status
type InvitationPayload struct {
	ID          string            `json:"id"`
	SenderID    string            `json:"senderId"`
	RecipientID string            `json:"recipientId"`
	Params      invitation.Params `json:"params"`
	Status      invitation.Status `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	ExpiresAt   time.Time         `json:"expiresAt"`
	GameID      string            `json:"gameId,omitempty"`
}

type GameReadyPayload struct {
	SessionID    string `json:"sessionId"`
	RoomCode     string `json:"roomCode"`
	InvitationID string `json:"invitationId,omitempty"`
}

type PongPayload struct {
	ServerTime int64 `json:"serverTime"`
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixMilli()
}

// ClockState builds the clock snapshot of s as seen at now
func ClockState(s *game.Session, now time.Time) *ClockStatePayload {
	p := &ClockStatePayload{
		SessionID:  s.ID,
		Mode:       s.Mode,
		ActiveSide: s.SideToMove(),
		ServerTime: now.UnixMilli(),
		Version:    s.Version,
	}

	if s.Clock == nil {
		p.WhiteRemaining = chess.Unlimited
		p.BlackRemaining = chess.Unlimited
		return p
	}

	p.Base = s.Clock.BaseMs
	p.Increment = s.Clock.IncrementMs
	p.WhiteRemaining = s.Clock.WhiteMs
	p.BlackRemaining = s.Clock.BlackMs
	p.ActiveSide = s.Clock.Active
	p.LastMoveTimestamp = unixMilli(s.Clock.LastMoveAt)
	p.Running = s.Clock.Started() && !s.Clock.Stopped

	return p
}

// GameState builds the full snapshot of s
func GameState(s *game.Session, now time.Time) GameStatePayload {
	p := GameStatePayload{
		SessionID:    s.ID,
		RoomCode:     s.RoomCode,
		Status:       s.Status,
		Mode:         s.Mode,
		HostID:       s.HostID,
		GuestID:      s.GuestID,
		WhiteID:      s.WhiteID,
		BlackID:      s.BlackID,
		Position:     s.Position,
		Moves:        append([]string{}, s.Moves...),
		SideToMove:   s.SideToMove(),
		InvitationID: s.InvitationID,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		Version:      s.Version,
	}
	if s.Clock != nil {
		p.Clock = ClockState(s, now)
	}
	if s.Result != nil {
		r := *s.Result
		p.Result = &r
	}

	return p
}

// GameOver builds the end-of-game notice for a terminal session
func GameOver(s *game.Session) GameOverPayload {
	p := GameOverPayload{SessionID: s.ID, Status: s.Status, Version: s.Version}
	if s.Result != nil {
		p.Winner = s.Result.Winner
		p.Reason = s.Result.Reason
	}

	return p
}

// TrainingState builds the full snapshot of t
func TrainingState(t *game.Training) TrainingStatePayload {
	return TrainingStatePayload{
		SessionID:       t.ID,
		RoomCode:        t.RoomCode,
		CoachID:         t.CoachID,
		Participants:    append([]string{}, t.Participants...),
		StartPosition:   t.StartPosition,
		Position:        t.Position,
		Moves:           append([]string{}, t.Moves...),
		InteractiveMode: t.InteractiveMode,
		Status:          t.Status,
		UpdatedAt:       t.UpdatedAt,
		Version:         t.Version,
	}
}

// Invitation builds the wire form of inv with lazy expiry applied at now
func Invitation(inv *invitation.Invitation, now time.Time) InvitationPayload {
	return InvitationPayload{
		ID:          inv.ID,
		SenderID:    inv.SenderID,
		RecipientID: inv.RecipientID,
		Params:      inv.Params,
		Status:      inv.EffectiveStatus(now),
		CreatedAt:   inv.CreatedAt,
		ExpiresAt:   inv.ExpiresAt,
		GameID:      inv.GameID,
	}
}
