package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/tecu23/chess-sessions/pkg/game"
	"github.com/tecu23/chess-sessions/pkg/invitation"
)

// InMemoryRepository is an in-memory implementation of Store
type InMemoryRepository struct {
	games       map[string]*game.Session
	trainings   map[string]*game.Training
	invitations map[string]*invitation.Invitation
	rooms       map[string]RoomRef

	mu     sync.RWMutex
	logger *zap.Logger
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository(logger *zap.Logger) *InMemoryRepository {
	return &InMemoryRepository{
		games:       make(map[string]*game.Session),
		trainings:   make(map[string]*game.Training),
		invitations: make(map[string]*invitation.Invitation),
		rooms:       make(map[string]RoomRef),
		logger:      logger,
	}
}

// GetGame retrieves a game by ID
func (r *InMemoryRepository) GetGame(_ context.Context, id string) (*game.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.games[id]
	if !ok {
		return nil, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}

	return s.Clone(), nil
}

// SaveGame saves a game and indexes its room code
func (r *InMemoryRepository) SaveGame(_ context.Context, s *game.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saveGame(s)
	return nil
}

func (r *InMemoryRepository) saveGame(s *game.Session) {
	r.games[s.ID] = s.Clone()
	if s.RoomCode != "" {
		r.rooms[s.RoomCode] = RoomRef{Kind: RoomGame, ID: s.ID}
	}
}

// DeleteGame removes a game and frees its room code
func (r *InMemoryRepository) DeleteGame(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.games[id]; ok {
		delete(r.rooms, s.RoomCode)
		delete(r.games, id)
		r.logger.Debug("deleted game", zap.String("game_id", id))
	}

	return nil
}

// ListGames returns every stored game, oldest first
func (r *InMemoryRepository) ListGames(_ context.Context) ([]*game.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*game.Session, 0, len(r.games))
	for _, s := range r.games {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

// GetTraining retrieves a training by ID
func (r *InMemoryRepository) GetTraining(_ context.Context, id string) (*game.Training, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.trainings[id]
	if !ok {
		return nil, fmt.Errorf("training %s: %w", id, ErrNotFound)
	}

	return t.Clone(), nil
}

// SaveTraining saves a training and indexes its room code
func (r *InMemoryRepository) SaveTraining(_ context.Context, t *game.Training) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trainings[t.ID] = t.Clone()
	if t.RoomCode != "" {
		r.rooms[t.RoomCode] = RoomRef{Kind: RoomTraining, ID: t.ID}
	}

	return nil
}

// DeleteTraining removes a training and frees its room code
func (r *InMemoryRepository) DeleteTraining(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.trainings[id]; ok {
		delete(r.rooms, t.RoomCode)
		delete(r.trainings, id)
	}

	return nil
}

// ListTrainings returns every stored training, oldest first
func (r *InMemoryRepository) ListTrainings(_ context.Context) ([]*game.Training, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*game.Training, 0, len(r.trainings))
	for _, t := range r.trainings {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

// GetInvitation retrieves an invitation by ID
func (r *InMemoryRepository) GetInvitation(_ context.Context, id string) (*invitation.Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inv, ok := r.invitations[id]
	if !ok {
		return nil, fmt.Errorf("invitation %s: %w", id, ErrNotFound)
	}

	return inv.Clone(), nil
}

// SaveInvitation saves an invitation
func (r *InMemoryRepository) SaveInvitation(_ context.Context, inv *invitation.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.invitations[inv.ID] = inv.Clone()
	return nil
}

// DeleteInvitation removes an invitation
func (r *InMemoryRepository) DeleteInvitation(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.invitations, id)
	return nil
}

// ListInvitations returns every stored invitation, oldest first
func (r *InMemoryRepository) ListInvitations(_ context.Context) ([]*invitation.Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*invitation.Invitation, 0, len(r.invitations))
	for _, inv := range r.invitations {
		out = append(out, inv.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

// SaveAcceptedInvitation writes both records under one lock
func (r *InMemoryRepository) SaveAcceptedInvitation(_ context.Context, inv *invitation.Invitation, s *game.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saveGame(s)
	r.invitations[inv.ID] = inv.Clone()
	return nil
}

// LookupRoomCode resolves a room code
func (r *InMemoryRepository) LookupRoomCode(_ context.Context, code string) (RoomRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, ok := r.rooms[code]
	if !ok {
		return RoomRef{}, fmt.Errorf("room %s: %w", code, ErrNotFound)
	}

	return ref, nil
}

// Ping always succeeds
func (r *InMemoryRepository) Ping(context.Context) error { return nil }

// Close is a no-op
func (r *InMemoryRepository) Close() error { return nil }
