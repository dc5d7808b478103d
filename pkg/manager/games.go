package manager

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tecu23/chess-sessions/pkg/events"
	"github.com/tecu23/chess-sessions/pkg/game"
	"github.com/tecu23/chess-sessions/pkg/messages"
	"github.com/tecu23/chess-sessions/pkg/metrics"
	"github.com/tecu23/chess-sessions/pkg/repository"
)

// gameTx mutates a loaded session. Returning no events means nothing changed
// and nothing is saved.
type gameTx func(s *game.Session, now time.Time) ([]events.Event, error)

// updateGame runs tx with the session's key held. The new state is saved
// before its events are published, and both happen before the key is
// released, so subscribers see commits in order.
func (m *Manager) updateGame(ctx context.Context, id string, tx gameTx) (*game.Session, error) {
	unlock := m.locks.lock(gameKey(id))
	defer unlock()

	s, err := m.store.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}

	wasTerminal := s.Status.Terminal()
	evs, err := tx(s, m.Now())
	if err != nil {
		return nil, err
	}
	if len(evs) == 0 {
		return s, nil
	}

	if err := m.store.SaveGame(ctx, s); err != nil {
		return nil, fmt.Errorf("save game %s: %w", id, err)
	}
	m.publish(evs...)

	if !wasTerminal && s.Status.Terminal() {
		metrics.GamesEnded.WithLabelValues(string(s.Result.Reason)).Inc()
		m.logger.Info("game finished",
			zap.String("session_id", s.ID),
			zap.String("status", string(s.Status)),
			zap.String("reason", string(s.Result.Reason)),
		)
	}

	return s, nil
}

// CreateGame opens a session waiting for its guest
func (m *Manager) CreateGame(ctx context.Context, p game.CreateParams) (*game.Session, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	unlock := m.locks.lock(roomsKey)
	defer unlock()

	code, err := m.newRoomCode(ctx)
	if err != nil {
		return nil, err
	}

	now := m.Now()
	s, err := game.New(m.opts.NewID(), code, p, m.rand, now)
	if err != nil {
		return nil, err
	}

	if err := m.store.SaveGame(ctx, s); err != nil {
		return nil, fmt.Errorf("save game %s: %w", s.ID, err)
	}

	metrics.SessionsCreated.WithLabelValues(string(s.Mode)).Inc()
	m.logger.Info("created game session",
		zap.String("session_id", s.ID),
		zap.String("room_code", s.RoomCode),
		zap.String("mode", string(s.Mode)),
	)

	m.publish(events.Event{
		Type:    events.EventSessionCreated,
		GameID:  s.ID,
		Version: s.Version,
		Payload: messages.GameState(s, now),
	})

	return s, nil
}

// GetGame returns a copy of the session
func (m *Manager) GetGame(ctx context.Context, id string) (*game.Session, error) {
	return m.store.GetGame(ctx, id)
}

// LookupRoom resolves a room code to a game or training
func (m *Manager) LookupRoom(ctx context.Context, code string) (repository.RoomRef, error) {
	return m.store.LookupRoomCode(ctx, NormalizeRoomCode(code))
}

// JoinGame seats guestID in a waiting session
func (m *Manager) JoinGame(ctx context.Context, id, guestID string) (*game.Session, error) {
	return m.updateGame(ctx, id, func(s *game.Session, now time.Time) ([]events.Event, error) {
		if err := s.Join(guestID, now); err != nil {
			return nil, err
		}

		color, _ := s.ColorOf(guestID)
		joined := gameEvent(events.EventPlayerJoined, s, messages.EventPlayerJoined, messages.PlayerJoinedPayload{
			SessionID: s.ID,
			PlayerID:  guestID,
			Color:     color,
		})

		return append([]events.Event{joined}, snapshotEvents(s, now)...), nil
	})
}

// JoinGameByRoomCode joins the game a room code points at
func (m *Manager) JoinGameByRoomCode(ctx context.Context, code, guestID string) (*game.Session, error) {
	ref, err := m.LookupRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if ref.Kind != repository.RoomGame {
		return nil, fmt.Errorf("%w: room %s is a training room", game.ErrInvalidState, code)
	}

	return m.JoinGame(ctx, ref.ID, guestID)
}

// SubmitMove validates and applies a move by actorID
func (m *Manager) SubmitMove(ctx context.Context, id, actorID, move string) (*game.Session, error) {
	start := time.Now()
	defer func() { metrics.MoveLatency.Observe(time.Since(start).Seconds()) }()

	return m.updateGame(ctx, id, func(s *game.Session, now time.Time) ([]events.Event, error) {
		res, err := s.SubmitMove(m.oracle, actorID, move, now)
		if err != nil {
			return nil, err
		}

		metrics.Moves.Inc()
		moved := gameEvent(events.EventMoveMade, s, messages.EventMove, messages.MovePayload{
			SessionID: s.ID,
			PlayerID:  actorID,
			Move:      res.SAN,
			UCI:       res.UCI,
			Position:  s.Position,
			Version:   s.Version,
		})

		return append([]events.Event{moved}, snapshotEvents(s, now)...), nil
	})
}

// Resign ends the game in favour of actorID's opponent
func (m *Manager) Resign(ctx context.Context, id, actorID string) (*game.Session, error) {
	return m.updateGame(ctx, id, func(s *game.Session, now time.Time) ([]events.Event, error) {
		if err := s.Resign(actorID, now); err != nil {
			return nil, err
		}

		return snapshotEvents(s, now), nil
	})
}

// ExpireOnTime ends the game if the side to move has flagged. It reports
// whether this call ended it.
func (m *Manager) ExpireOnTime(ctx context.Context, id string) (bool, error) {
	var expired bool
	_, err := m.updateGame(ctx, id, func(s *game.Session, now time.Time) ([]events.Event, error) {
		if expired = s.ExpireOnTime(now); !expired {
			return nil, nil
		}

		return snapshotEvents(s, now), nil
	})

	return expired, err
}

// ClaimTimeout is a client reporting a flag. The server re-checks the clock;
// an early claim leaves the game running.
func (m *Manager) ClaimTimeout(ctx context.Context, id, actorID string) (*game.Session, error) {
	return m.updateGame(ctx, id, func(s *game.Session, now time.Time) ([]events.Event, error) {
		if !s.IsParticipant(actorID) {
			return nil, fmt.Errorf("%w: %s", game.ErrNotParticipant, actorID)
		}
		if !s.ExpireOnTime(now) {
			return nil, nil
		}

		return snapshotEvents(s, now), nil
	})
}

// EndGame finishes the game with an explicit result. Ending a finished game
// changes nothing.
func (m *Manager) EndGame(ctx context.Context, id string, result game.Result) (*game.Session, error) {
	if result.Winner != "" && !result.Winner.Valid() {
		return nil, fmt.Errorf("%w: unknown winner %q", game.ErrInvalidParams, result.Winner)
	}
	if result.Reason == "" {
		result.Reason = game.ReasonAdjudicated
	}

	return m.updateGame(ctx, id, func(s *game.Session, now time.Time) ([]events.Event, error) {
		if !s.End(result, now) {
			return nil, nil
		}

		return snapshotEvents(s, now), nil
	})
}

// AbandonGame finishes the game without a winner
func (m *Manager) AbandonGame(ctx context.Context, id string) (*game.Session, error) {
	return m.updateGame(ctx, id, func(s *game.Session, now time.Time) ([]events.Event, error) {
		if !s.Abandon(now) {
			return nil, nil
		}

		return snapshotEvents(s, now), nil
	})
}
