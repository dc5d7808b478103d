// Package game implements the lifecycle of a two-party game session and of the
// clockless training room.
//
// Every operation is a method on a value owned by the caller. Time and
// randomness are passed in; the registry is responsible for serialising calls
// against one session and for persisting the result.
package game

import (
	"fmt"
	"slices"
	"time"

	"github.com/tecu23/chess-sessions/pkg/chess"
	"github.com/tecu23/chess-sessions/pkg/rules"
)

// Status is the lifecycle state of a game session
type Status string

// Game session states
const (
	StatusWaiting   Status = "WAITING_FOR_GUEST"
	StatusActive    Status = "ACTIVE"
	StatusEnded     Status = "ENDED"
	StatusAbandoned Status = "ABANDONED"
)

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusAbandoned
}

// Mode selects whether the game is played on a clock
type Mode string

// Game modes
const (
	ModeTimed    Mode = "TIMED"
	ModeTraining Mode = "TRAINING"
)

// ColorPreference is the host's requested side
type ColorPreference string

// Color preferences
const (
	PreferWhite  ColorPreference = "white"
	PreferBlack  ColorPreference = "black"
	PreferRandom ColorPreference = "random"
)

// RandomSource is satisfied by *rand.Rand from math/rand/v2
type RandomSource interface {
	IntN(n int) int
}

// Resolve turns a preference into a side
func (p ColorPreference) Resolve(rng RandomSource) chess.Color {
	switch p {
	case PreferWhite:
		return chess.White
	case PreferBlack:
		return chess.Black
	}

	if rng.IntN(2) == 0 {
		return chess.White
	}
	return chess.Black
}

func (p ColorPreference) valid() bool {
	return p == PreferWhite || p == PreferBlack || p == PreferRandom || p == ""
}

// EndReason tells how a game finished
type EndReason string

// End reasons
const (
	ReasonCheckmate   EndReason = "CHECKMATE"
	ReasonStalemate   EndReason = "STALEMATE"
	ReasonDraw        EndReason = "DRAW"
	ReasonTimeout     EndReason = "TIMEOUT"
	ReasonResignation EndReason = "RESIGNATION"
	ReasonAdjudicated EndReason = "ADJUDICATED"
	ReasonAbandoned   EndReason = "ABANDONED"
)

// Result of a finished game. An empty Winner is a draw.
type Result struct {
	Winner chess.Color `json:"winner,omitempty"`
	Reason EndReason   `json:"reason"`
}

// CreateParams are the host's choices for a new session
type CreateParams struct {
	HostID          string             `json:"hostId"`
	ColorPreference ColorPreference    `json:"colorPreference"`
	Mode            Mode               `json:"mode"`
	Clock           *chess.TimeControl `json:"clock,omitempty"`
}

// Validate checks that the mode and clock settings agree
func (p CreateParams) Validate() error {
	if p.HostID == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidParams)
	}
	if !p.ColorPreference.valid() {
		return fmt.Errorf("%w: unknown color preference %q", ErrInvalidParams, p.ColorPreference)
	}

	switch p.Mode {
	case ModeTimed:
		if p.Clock == nil {
			return fmt.Errorf("%w: timed games need a clock", ErrInvalidParams)
		}
		if err := p.Clock.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
	case ModeTraining:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidParams, p.Mode)
	}

	return nil
}

// Session is one game between a host and a guest
type Session struct {
	ID       string `json:"id"`
	RoomCode string `json:"roomCode"`

	HostID    string      `json:"hostId"`
	GuestID   string      `json:"guestId,omitempty"`
	HostColor chess.Color `json:"hostColor"`
	WhiteID   string      `json:"whiteId,omitempty"`
	BlackID   string      `json:"blackId,omitempty"`

	Position string   `json:"position"`
	Moves    []string `json:"moves"`

	Status Status            `json:"status"`
	Mode   Mode              `json:"mode"`
	Clock  *chess.ClockState `json:"clock,omitempty"`
	Result *Result           `json:"result,omitempty"`

	InvitationID string `json:"invitationId,omitempty"`

	LastMoveAt time.Time `json:"lastMoveAt"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Version    int64     `json:"version"`
}

// New creates a session waiting for its guest
func New(id, roomCode string, p CreateParams, rng RandomSource, now time.Time) (*Session, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		ID:        id,
		RoomCode:  roomCode,
		HostID:    p.HostID,
		HostColor: p.ColorPreference.Resolve(rng),
		Position:  rules.StartPosition,
		Moves:     []string{},
		Status:    StatusWaiting,
		Mode:      p.Mode,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	s.assign(s.HostColor, p.HostID)

	if p.Mode == ModeTimed {
		s.Clock = chess.NewClockState(*p.Clock)
	}

	return s, nil
}

// Clone returns a deep copy
func (s *Session) Clone() *Session {
	c := *s
	c.Moves = slices.Clone(s.Moves)
	c.Clock = s.Clock.Clone()
	if s.Result != nil {
		r := *s.Result
		c.Result = &r
	}

	return &c
}

func (s *Session) assign(side chess.Color, playerID string) {
	if side == chess.White {
		s.WhiteID = playerID
	} else {
		s.BlackID = playerID
	}
}

func (s *Session) touch(now time.Time) {
	s.UpdatedAt = now
	s.Version++
}

// SideToMove is derived from the parity of the move list
func (s *Session) SideToMove() chess.Color {
	return chess.ToMove(len(s.Moves))
}

// ColorOf returns the side played by playerID
func (s *Session) ColorOf(playerID string) (chess.Color, bool) {
	switch {
	case playerID == "":
		return "", false
	case playerID == s.WhiteID:
		return chess.White, true
	case playerID == s.BlackID:
		return chess.Black, true
	}

	return "", false
}

// PlayerOf returns the player id holding side
func (s *Session) PlayerOf(side chess.Color) string {
	if side == chess.White {
		return s.WhiteID
	}

	return s.BlackID
}

// IsParticipant reports whether playerID is host or guest
func (s *Session) IsParticipant(playerID string) bool {
	_, ok := s.ColorOf(playerID)
	return ok
}

// Remaining is the time left for side at now, chess.Unlimited for training games
func (s *Session) Remaining(side chess.Color, now time.Time) int64 {
	return chess.Remaining(side, s.Clock, now)
}

// Join seats the guest on the side the host did not take
func (s *Session) Join(guestID string, now time.Time) error {
	if s.Status != StatusWaiting || s.GuestID != "" {
		return fmt.Errorf("%w: session %s is %s", ErrInvalidState, s.ID, s.Status)
	}
	if guestID == "" || guestID == s.HostID {
		return fmt.Errorf("%w: host cannot join their own session", ErrInvalidState)
	}

	s.GuestID = guestID
	s.assign(s.HostColor.Opp(), guestID)
	s.Status = StatusActive

	invariant(s.WhiteID != "" && s.BlackID != "", "active session %s without both colors", s.ID)

	s.touch(now)
	return nil
}

// SubmitMove validates move against the stored position and applies it. The
// resulting position always comes from the oracle.
func (s *Session) SubmitMove(o rules.Oracle, actorID, move string, now time.Time) (rules.Result, error) {
	if s.Status != StatusActive {
		return rules.Result{}, fmt.Errorf("%w: session %s is %s", ErrInvalidState, s.ID, s.Status)
	}

	invariant(s.WhiteID != "" && s.BlackID != "", "active session %s without both colors", s.ID)

	side := s.SideToMove()
	if color, ok := s.ColorOf(actorID); !ok || color != side {
		return rules.Result{}, fmt.Errorf("%w: %s to move", ErrNotYourTurn, side)
	}

	res, err := o.Apply(s.Position, move)
	if err != nil {
		return rules.Result{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}

	s.Moves = append(s.Moves, res.SAN)
	s.Position = res.Position
	s.LastMoveAt = now

	if s.Clock != nil {
		invariant(s.Clock.Active == side, "clock runs for %s but %s is to move", s.Clock.Active, side)
		next := chess.ChargeMove(*s.Clock, side, now)
		s.Clock = &next
	}

	switch res.Outcome {
	case rules.WhiteWon:
		s.finish(Result{Winner: chess.White, Reason: ReasonCheckmate}, StatusEnded, now)
	case rules.BlackWon:
		s.finish(Result{Winner: chess.Black, Reason: ReasonCheckmate}, StatusEnded, now)
	case rules.Draw:
		reason := ReasonDraw
		if res.Method == "stalemate" {
			reason = ReasonStalemate
		}
		s.finish(Result{Reason: reason}, StatusEnded, now)
	}

	s.touch(now)
	return res, nil
}

// ExpireOnTime ends the game if the side to move has flagged. It reports
// whether this call performed the transition.
func (s *Session) ExpireOnTime(now time.Time) bool {
	if s.Status != StatusActive || s.Clock == nil {
		return false
	}

	side := s.SideToMove()
	if !chess.IsExpired(side, s.Clock, now) {
		return false
	}

	s.finish(Result{Winner: side.Opp(), Reason: ReasonTimeout}, StatusEnded, now)
	s.touch(now)
	return true
}

// End finishes the game with an explicit result. It is a no-op on a terminal
// session.
func (s *Session) End(result Result, now time.Time) bool {
	if s.Status.Terminal() {
		return false
	}

	s.finish(result, StatusEnded, now)
	s.touch(now)
	return true
}

// Abandon finishes the game without a winner. It is a no-op on a terminal
// session.
func (s *Session) Abandon(now time.Time) bool {
	if s.Status.Terminal() {
		return false
	}

	s.finish(Result{Reason: ReasonAbandoned}, StatusAbandoned, now)
	s.touch(now)
	return true
}

// Resign ends an active game in favour of the opponent of actorID
func (s *Session) Resign(actorID string, now time.Time) error {
	if s.Status != StatusActive {
		return fmt.Errorf("%w: session %s is %s", ErrInvalidState, s.ID, s.Status)
	}

	color, ok := s.ColorOf(actorID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotParticipant, actorID)
	}

	s.finish(Result{Winner: color.Opp(), Reason: ReasonResignation}, StatusEnded, now)
	s.touch(now)
	return nil
}

func (s *Session) finish(result Result, status Status, now time.Time) {
	s.Status = status
	s.Result = &result

	if s.Clock != nil {
		stopped := chess.Stop(*s.Clock, now)
		s.Clock = &stopped
	}
}
