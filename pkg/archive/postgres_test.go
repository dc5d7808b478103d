package archive

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tecu23/chess-sessions/pkg/chess"
	"github.com/tecu23/chess-sessions/pkg/game"
)

// Runs only against a real database.
func TestPostgresArchive(t *testing.T) {
	dsn := os.Getenv("ARCHIVE_DATABASE_URL")
	if dsn == "" {
		t.Skip("ARCHIVE_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, err := Connect(ctx, dsn, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	now := time.Now().UTC().Truncate(time.Millisecond)
	s := &game.Session{
		ID:        uuid.NewString(),
		RoomCode:  "ABC234",
		Mode:      game.ModeTraining,
		Status:    game.StatusEnded,
		WhiteID:   "alice",
		BlackID:   "bob",
		Position:  "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1",
		Moves:     []string{"e4"},
		Result:    &game.Result{Winner: chess.White, Reason: game.ReasonResignation},
		CreatedAt: now.Add(-time.Minute),
		UpdatedAt: now,
	}

	require.NoError(t, a.SaveGame(ctx, s))
	require.NoError(t, a.SaveGame(ctx, s))

	r, err := a.GetGame(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"e4"}, r.Moves)
	assert.Equal(t, "white", r.Winner)
	assert.Equal(t, "RESIGNATION", r.Reason)
	assert.True(t, r.FinishedAt.Equal(now))

	_, err = a.GetGame(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveGameRejectsLiveSession(t *testing.T) {
	a := NewPostgresArchive(nil, zap.NewNop())

	err := a.SaveGame(context.Background(), &game.Session{ID: "g", Status: game.StatusActive})
	assert.ErrorContains(t, err, "not terminal")
}
