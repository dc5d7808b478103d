// Package repository persists game sessions, trainings and invitations.
package repository

import (
	"context"
	"errors"

	"github.com/tecu23/chess-sessions/pkg/game"
	"github.com/tecu23/chess-sessions/pkg/invitation"
)

// ErrNotFound is returned for unknown ids and room codes
var ErrNotFound = errors.New("not found")

// RoomKind tells what a room code points at
type RoomKind string

// Room kinds
const (
	RoomGame     RoomKind = "game"
	RoomTraining RoomKind = "training"
)

// RoomRef is the target of a room code
type RoomRef struct {
	Kind RoomKind `json:"kind"`
	ID   string   `json:"id"`
}

// Store is implemented by the in-memory and redis repositories. Values
// returned are copies; mutating them has no effect until saved.
type Store interface {
	GetGame(ctx context.Context, id string) (*game.Session, error)
	SaveGame(ctx context.Context, s *game.Session) error
	DeleteGame(ctx context.Context, id string) error
	ListGames(ctx context.Context) ([]*game.Session, error)

	GetTraining(ctx context.Context, id string) (*game.Training, error)
	SaveTraining(ctx context.Context, t *game.Training) error
	DeleteTraining(ctx context.Context, id string) error
	ListTrainings(ctx context.Context) ([]*game.Training, error)

	GetInvitation(ctx context.Context, id string) (*invitation.Invitation, error)
	SaveInvitation(ctx context.Context, inv *invitation.Invitation) error
	DeleteInvitation(ctx context.Context, id string) error
	ListInvitations(ctx context.Context) ([]*invitation.Invitation, error)

	// SaveAcceptedInvitation stores the created session and the accepted
	// invitation together so the invitation is never seen accepted without
	// its game.
	SaveAcceptedInvitation(ctx context.Context, inv *invitation.Invitation, s *game.Session) error

	LookupRoomCode(ctx context.Context, code string) (RoomRef, error)

	Ping(ctx context.Context) error
	Close() error
}
