package game

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/tecu23/chess-sessions/pkg/rules"
)

// ErrNotCoach is returned when a participant attempts a coach-only action
var ErrNotCoach = errors.New("only the coach may do this")

// TrainingStatus is the lifecycle state of a training room
type TrainingStatus string

// Training states
const (
	TrainingActive TrainingStatus = "ACTIVE"
	TrainingPaused TrainingStatus = "PAUSED"
	TrainingEnded  TrainingStatus = "ENDED"
)

// Training is a clockless shared board run by a coach
type Training struct {
	ID       string `json:"id"`
	RoomCode string `json:"roomCode"`
	CoachID  string `json:"coachId"`

	// Participants always starts with the coach
	Participants []string `json:"participants"`

	StartPosition   string         `json:"startPosition"`
	Position        string         `json:"position"`
	Moves           []string       `json:"moves"`
	InteractiveMode bool           `json:"interactiveMode"`
	Status          TrainingStatus `json:"status"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   int64     `json:"version"`
}

// NewTraining opens a training room. position must already be normalised by
// the oracle.
func NewTraining(id, roomCode, coachID, position string, interactive bool, now time.Time) (*Training, error) {
	if coachID == "" {
		return nil, fmt.Errorf("%w: coach is required", ErrInvalidParams)
	}
	if position == "" {
		position = rules.StartPosition
	}

	return &Training{
		ID:              id,
		RoomCode:        roomCode,
		CoachID:         coachID,
		Participants:    []string{coachID},
		StartPosition:   position,
		Position:        position,
		Moves:           []string{},
		InteractiveMode: interactive,
		Status:          TrainingActive,
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         1,
	}, nil
}

// Clone returns a deep copy
func (t *Training) Clone() *Training {
	c := *t
	c.Participants = slices.Clone(t.Participants)
	c.Moves = slices.Clone(t.Moves)

	return &c
}

func (t *Training) touch(now time.Time) {
	t.UpdatedAt = now
	t.Version++
}

// IsParticipant reports whether playerID is in the room
func (t *Training) IsParticipant(playerID string) bool {
	return slices.Contains(t.Participants, playerID)
}

func (t *Training) requireCoach(actorID string) error {
	if actorID != t.CoachID {
		return ErrNotCoach
	}

	return nil
}

func (t *Training) requireOpen() error {
	if t.Status == TrainingEnded {
		return fmt.Errorf("%w: training %s has ended", ErrInvalidState, t.ID)
	}

	return nil
}

// Join adds a participant. Joining twice is harmless.
func (t *Training) Join(playerID string, now time.Time) error {
	if err := t.requireOpen(); err != nil {
		return err
	}
	if playerID == "" {
		return fmt.Errorf("%w: participant is required", ErrInvalidParams)
	}
	if t.IsParticipant(playerID) {
		return nil
	}

	t.Participants = append(t.Participants, playerID)
	t.touch(now)
	return nil
}

// Leave removes a participant. The coach cannot leave, only end the room.
func (t *Training) Leave(playerID string, now time.Time) error {
	if playerID == t.CoachID {
		return fmt.Errorf("%w: the coach ends the training instead of leaving", ErrInvalidState)
	}

	i := slices.Index(t.Participants, playerID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotParticipant, playerID)
	}

	t.Participants = slices.Delete(t.Participants, i, i+1)
	t.touch(now)
	return nil
}

// SubmitMove plays a move on the shared board. The coach may always move;
// other participants only in interactive mode.
func (t *Training) SubmitMove(o rules.Oracle, actorID, move string, now time.Time) (rules.Result, error) {
	if t.Status != TrainingActive {
		return rules.Result{}, fmt.Errorf("%w: training %s is %s", ErrInvalidState, t.ID, t.Status)
	}
	if !t.IsParticipant(actorID) {
		return rules.Result{}, fmt.Errorf("%w: %s", ErrNotParticipant, actorID)
	}
	if actorID != t.CoachID && !t.InteractiveMode {
		return rules.Result{}, fmt.Errorf("%w: the board is not interactive", ErrNotYourTurn)
	}

	res, err := o.Apply(t.Position, move)
	if err != nil {
		return rules.Result{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}

	t.Moves = append(t.Moves, res.SAN)
	t.Position = res.Position
	t.touch(now)

	return res, nil
}

// SetInteractive toggles whether participants may move
func (t *Training) SetInteractive(actorID string, on bool, now time.Time) error {
	if err := t.requireOpen(); err != nil {
		return err
	}
	if err := t.requireCoach(actorID); err != nil {
		return err
	}

	t.InteractiveMode = on
	t.touch(now)
	return nil
}

// SetPosition loads a new board and clears the move list. position must
// already be normalised by the oracle.
func (t *Training) SetPosition(actorID, position string, now time.Time) error {
	if err := t.requireOpen(); err != nil {
		return err
	}
	if err := t.requireCoach(actorID); err != nil {
		return err
	}

	t.StartPosition = position
	t.Position = position
	t.Moves = []string{}
	t.touch(now)
	return nil
}

// Pause freezes the board
func (t *Training) Pause(actorID string, now time.Time) error {
	if err := t.requireCoach(actorID); err != nil {
		return err
	}
	if t.Status != TrainingActive {
		return fmt.Errorf("%w: training %s is %s", ErrInvalidState, t.ID, t.Status)
	}

	t.Status = TrainingPaused
	t.touch(now)
	return nil
}

// Resume reopens a paused board
func (t *Training) Resume(actorID string, now time.Time) error {
	if err := t.requireCoach(actorID); err != nil {
		return err
	}
	if t.Status != TrainingPaused {
		return fmt.Errorf("%w: training %s is %s", ErrInvalidState, t.ID, t.Status)
	}

	t.Status = TrainingActive
	t.touch(now)
	return nil
}

// End closes the room. Ending twice is a no-op.
func (t *Training) End(now time.Time) bool {
	if t.Status == TrainingEnded {
		return false
	}

	t.Status = TrainingEnded
	t.touch(now)
	return true
}
