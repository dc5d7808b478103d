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

type trainingTx func(t *game.Training, now time.Time) ([]events.Event, error)

func (m *Manager) updateTraining(ctx context.Context, id string, tx trainingTx) (*game.Training, error) {
	unlock := m.locks.lock(trainingKey(id))
	defer unlock()

	t, err := m.store.GetTraining(ctx, id)
	if err != nil {
		return nil, err
	}

	evs, err := tx(t, m.Now())
	if err != nil {
		return nil, err
	}
	if len(evs) == 0 {
		return t, nil
	}

	if err := m.store.SaveTraining(ctx, t); err != nil {
		return nil, fmt.Errorf("save training %s: %w", id, err)
	}
	m.publish(evs...)

	return t, nil
}

// normalize runs a client-supplied position through the oracle
func (m *Manager) normalize(position string) (string, error) {
	if position == "" {
		return "", nil
	}

	fen, err := m.oracle.Normalize(position)
	if err != nil {
		return "", fmt.Errorf("%w: %v", game.ErrInvalidParams, err)
	}

	return fen, nil
}

// CreateTraining opens a training room run by coachID
func (m *Manager) CreateTraining(ctx context.Context, coachID, position string, interactive bool) (*game.Training, error) {
	fen, err := m.normalize(position)
	if err != nil {
		return nil, err
	}

	unlock := m.locks.lock(roomsKey)
	defer unlock()

	code, err := m.newRoomCode(ctx)
	if err != nil {
		return nil, err
	}

	t, err := game.NewTraining(m.opts.NewID(), code, coachID, fen, interactive, m.Now())
	if err != nil {
		return nil, err
	}

	if err := m.store.SaveTraining(ctx, t); err != nil {
		return nil, fmt.Errorf("save training %s: %w", t.ID, err)
	}

	metrics.SessionsCreated.WithLabelValues("TRAINING_ROOM").Inc()
	m.logger.Info("created training",
		zap.String("training_id", t.ID),
		zap.String("room_code", t.RoomCode),
		zap.String("coach", coachID),
	)

	return t, nil
}

// GetTraining returns a copy of the training
func (m *Manager) GetTraining(ctx context.Context, id string) (*game.Training, error) {
	return m.store.GetTraining(ctx, id)
}

// JoinTraining adds playerID to the room
func (m *Manager) JoinTraining(ctx context.Context, id, playerID string) (*game.Training, error) {
	return m.updateTraining(ctx, id, func(t *game.Training, now time.Time) ([]events.Event, error) {
		if t.IsParticipant(playerID) {
			return nil, nil
		}
		if err := t.Join(playerID, now); err != nil {
			return nil, err
		}

		joined := trainingEvent(events.EventPlayerJoined, t, messages.EventPlayerJoined, messages.PlayerJoinedPayload{
			SessionID: t.ID,
			PlayerID:  playerID,
		})
		return []events.Event{joined, trainingSnapshot(t)}, nil
	})
}

// JoinTrainingByRoomCode joins the training a room code points at
func (m *Manager) JoinTrainingByRoomCode(ctx context.Context, code, playerID string) (*game.Training, error) {
	ref, err := m.LookupRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if ref.Kind != repository.RoomTraining {
		return nil, fmt.Errorf("%w: room %s is a game room", game.ErrInvalidState, code)
	}

	return m.JoinTraining(ctx, ref.ID, playerID)
}

// LeaveTraining removes a participant
func (m *Manager) LeaveTraining(ctx context.Context, id, playerID string) (*game.Training, error) {
	return m.updateTraining(ctx, id, func(t *game.Training, now time.Time) ([]events.Event, error) {
		if err := t.Leave(playerID, now); err != nil {
			return nil, err
		}

		return []events.Event{trainingSnapshot(t)}, nil
	})
}

// TrainingMove plays a move on the shared board
func (m *Manager) TrainingMove(ctx context.Context, id, actorID, move string) (*game.Training, error) {
	return m.updateTraining(ctx, id, func(t *game.Training, now time.Time) ([]events.Event, error) {
		res, err := t.SubmitMove(m.oracle, actorID, move, now)
		if err != nil {
			return nil, err
		}

		metrics.Moves.Inc()
		moved := trainingEvent(events.EventMoveMade, t, messages.EventMove, messages.MovePayload{
			SessionID: t.ID,
			PlayerID:  actorID,
			Move:      res.SAN,
			UCI:       res.UCI,
			Position:  t.Position,
			Version:   t.Version,
		})
		return []events.Event{moved, trainingSnapshot(t)}, nil
	})
}

// SetInteractive lets participants move, or stops them
func (m *Manager) SetInteractive(ctx context.Context, id, actorID string, on bool) (*game.Training, error) {
	return m.updateTraining(ctx, id, func(t *game.Training, now time.Time) ([]events.Event, error) {
		if err := t.SetInteractive(actorID, on, now); err != nil {
			return nil, err
		}

		return []events.Event{trainingSnapshot(t)}, nil
	})
}

// SetTrainingPosition loads a validated position and clears the moves
func (m *Manager) SetTrainingPosition(ctx context.Context, id, actorID, position string) (*game.Training, error) {
	if position == "" {
		return nil, fmt.Errorf("%w: position is required", game.ErrInvalidParams)
	}
	fen, err := m.normalize(position)
	if err != nil {
		return nil, err
	}

	return m.updateTraining(ctx, id, func(t *game.Training, now time.Time) ([]events.Event, error) {
		if err := t.SetPosition(actorID, fen, now); err != nil {
			return nil, err
		}

		return []events.Event{trainingSnapshot(t)}, nil
	})
}

// PauseTraining freezes the board
func (m *Manager) PauseTraining(ctx context.Context, id, actorID string) (*game.Training, error) {
	return m.updateTraining(ctx, id, func(t *game.Training, now time.Time) ([]events.Event, error) {
		if err := t.Pause(actorID, now); err != nil {
			return nil, err
		}

		return []events.Event{trainingSnapshot(t)}, nil
	})
}

// ResumeTraining reopens a paused board
func (m *Manager) ResumeTraining(ctx context.Context, id, actorID string) (*game.Training, error) {
	return m.updateTraining(ctx, id, func(t *game.Training, now time.Time) ([]events.Event, error) {
		if err := t.Resume(actorID, now); err != nil {
			return nil, err
		}

		return []events.Event{trainingSnapshot(t)}, nil
	})
}

// EndTraining closes the room. Only the coach may end it; an empty actorID
// is the registry itself.
func (m *Manager) EndTraining(ctx context.Context, id, actorID string) (*game.Training, error) {
	return m.updateTraining(ctx, id, func(t *game.Training, now time.Time) ([]events.Event, error) {
		if actorID != "" && actorID != t.CoachID {
			return nil, game.ErrNotCoach
		}
		if !t.End(now) {
			return nil, nil
		}

		return []events.Event{trainingEvent(events.EventGameEnded, t, messages.EventTrainingState, messages.TrainingState(t))}, nil
	})
}
