// Package invitation negotiates game parameters between two players before a
// game session exists.
package invitation

import (
	"errors"
	"fmt"
	"time"

	"github.com/tecu23/chess-sessions/pkg/chess"
	"github.com/tecu23/chess-sessions/pkg/game"
)

// DefaultTTL is how long an invitation stays actionable
const DefaultTTL = 5 * time.Minute

var (
	ErrNotPending       = errors.New("invitation is not pending")
	ErrExpired          = errors.New("invitation expired")
	ErrDuplicatePending = errors.New("a pending invitation already exists between these players")
	ErrNotRecipient     = errors.New("only the recipient may respond")
	ErrNotSender        = errors.New("only the sender may cancel")
	ErrInvalidParams    = errors.New("invalid invitation")
)

// Status of an invitation
type Status string

// Invitation states. Every state other than pending is terminal.
const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusDeclined  Status = "DECLINED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the status is final
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Params are the proposed game settings
type Params struct {
	Mode        game.Mode            `json:"mode"`
	Clock       *chess.TimeControl   `json:"clock,omitempty"`
	SenderColor game.ColorPreference `json:"senderColor"`
}

// Invitation from one player to another
type Invitation struct {
	ID          string     `json:"id"`
	SenderID    string     `json:"senderId"`
	RecipientID string     `json:"recipientId"`
	Params      Params     `json:"params"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	RespondedAt *time.Time `json:"respondedAt,omitempty"`

	// GameID is set once accepted
	GameID string `json:"gameId,omitempty"`
}

// New creates a pending invitation expiring ttl after now
func New(id, senderID, recipientID string, p Params, now time.Time, ttl time.Duration) (*Invitation, error) {
	if senderID == "" || recipientID == "" {
		return nil, fmt.Errorf("%w: sender and recipient are required", ErrInvalidParams)
	}
	if senderID == recipientID {
		return nil, fmt.Errorf("%w: cannot invite yourself", ErrInvalidParams)
	}
	if p.SenderColor == "" {
		p.SenderColor = game.PreferRandom
	}

	inv := &Invitation{
		ID:          id,
		SenderID:    senderID,
		RecipientID: recipientID,
		Params:      p,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := inv.GameParams().Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	return inv, nil
}

// Clone returns a deep copy
func (i *Invitation) Clone() *Invitation {
	c := *i
	if i.Params.Clock != nil {
		tc := *i.Params.Clock
		c.Params.Clock = &tc
	}
	if i.RespondedAt != nil {
		r := *i.RespondedAt
		c.RespondedAt = &r
	}

	return &c
}

// EffectiveStatus applies lazy expiry: a pending invitation past its expiry is
// expired whether or not the sweep has written that yet.
func (i *Invitation) EffectiveStatus(now time.Time) Status {
	if i.Status == StatusPending && now.After(i.ExpiresAt) {
		return StatusExpired
	}

	return i.Status
}

// Actionable reports whether the invitation can still be answered
func (i *Invitation) Actionable(now time.Time) bool {
	return i.EffectiveStatus(now) == StatusPending
}

// Between reports whether the invitation connects a and b in either direction
func (i *Invitation) Between(a, b string) bool {
	return (i.SenderID == a && i.RecipientID == b) || (i.SenderID == b && i.RecipientID == a)
}

// Involves reports whether playerID is sender or recipient
func (i *Invitation) Involves(playerID string) bool {
	return i.SenderID == playerID || i.RecipientID == playerID
}

// GameParams are the settings the accepted game is created with. The sender
// hosts and the recipient joins.
func (i *Invitation) GameParams() game.CreateParams {
	return game.CreateParams{
		HostID:          i.SenderID,
		ColorPreference: i.Params.SenderColor,
		Mode:            i.Params.Mode,
		Clock:           i.Params.Clock,
	}
}

func (i *Invitation) checkPending(now time.Time) error {
	if i.Status != StatusPending {
		return fmt.Errorf("%w: invitation %s is %s", ErrNotPending, i.ID, i.Status)
	}
	if now.After(i.ExpiresAt) {
		return fmt.Errorf("%w: %w: invitation %s expired at %s", ErrExpired, ErrNotPending, i.ID, i.ExpiresAt)
	}

	return nil
}

// CheckAccept reports whether recipientID may accept at now
func (i *Invitation) CheckAccept(recipientID string, now time.Time) error {
	if err := i.checkPending(now); err != nil {
		return err
	}
	if recipientID != i.RecipientID {
		return ErrNotRecipient
	}

	return nil
}

// Accept records acceptance and the created game
func (i *Invitation) Accept(recipientID, gameID string, now time.Time) error {
	if err := i.CheckAccept(recipientID, now); err != nil {
		return err
	}

	i.respond(StatusAccepted, now)
	i.GameID = gameID
	return nil
}

// Decline is the recipient refusing
func (i *Invitation) Decline(recipientID string, now time.Time) error {
	if err := i.checkPending(now); err != nil {
		return err
	}
	if recipientID != i.RecipientID {
		return ErrNotRecipient
	}

	i.respond(StatusDeclined, now)
	return nil
}

// Cancel is the sender withdrawing
func (i *Invitation) Cancel(senderID string, now time.Time) error {
	if err := i.checkPending(now); err != nil {
		return err
	}
	if senderID != i.SenderID {
		return ErrNotSender
	}

	i.respond(StatusCancelled, now)
	return nil
}

// Expire promotes a lazily expired invitation. It reports whether the status
// changed.
func (i *Invitation) Expire(now time.Time) bool {
	if i.EffectiveStatus(now) != StatusExpired || i.Status == StatusExpired {
		return false
	}

	i.respond(StatusExpired, now)
	return true
}

func (i *Invitation) respond(status Status, now time.Time) {
	i.Status = status
	i.RespondedAt = &now
}
