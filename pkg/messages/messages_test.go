package messages

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tecu23/chess-sessions/pkg/chess"
	"github.com/tecu23/chess-sessions/pkg/game"
	"github.com/tecu23/chess-sessions/pkg/invitation"
	"github.com/tecu23/chess-sessions/pkg/rules"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type zeroRand struct{}

func (zeroRand) IntN(int) int { return 0 }

func started(t *testing.T) *game.Session {
	t.Helper()

	s, err := game.New("g1", "ABC234", game.CreateParams{
		HostID:          "alice",
		ColorPreference: game.PreferWhite,
		Mode:            game.ModeTimed,
		Clock:           &chess.TimeControl{BaseSeconds: 60, IncrementSeconds: 2},
	}, zeroRand{}, t0)
	require.NoError(t, err)
	require.NoError(t, s.Join("bob", t0))

	_, err = s.SubmitMove(rules.NewChessOracle(), "alice", "e2e4", t0.Add(time.Second))
	require.NoError(t, err)
	return s
}

func TestClockSnapshotRoundTrip(t *testing.T) {
	s := started(t)
	now := t0.Add(4 * time.Second)

	p := ClockState(s, now)
	assert.Equal(t, game.ModeTimed, p.Mode)
	assert.Equal(t, int64(60_000), p.Base)
	assert.Equal(t, int64(2_000), p.Increment)
	assert.Equal(t, chess.Black, p.ActiveSide)
	assert.True(t, p.Running)
	assert.Equal(t, t0.Add(time.Second).UnixMilli(), p.LastMoveTimestamp)
	assert.Equal(t, now.UnixMilli(), p.ServerTime)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	var back ClockStatePayload
	require.NoError(t, json.Unmarshal(raw, &back))

	// a receiver whose clock runs 500ms ahead of the server
	offset := 500 * time.Millisecond
	state := back.State(offset)
	require.NotNil(t, state)

	local := now.Add(offset)
	assert.Equal(t, int64(57_000), chess.Remaining(chess.Black, state, local))
	assert.Equal(t, int64(60_000), chess.Remaining(chess.White, state, local))
}

func TestTrainingClockIsUnlimited(t *testing.T) {
	s, err := game.New("g", "C", game.CreateParams{HostID: "a", Mode: game.ModeTraining}, zeroRand{}, t0)
	require.NoError(t, err)

	p := ClockState(s, t0)
	assert.Equal(t, chess.Unlimited, p.WhiteRemaining)
	assert.Nil(t, p.State(0))
	assert.Nil(t, GameState(s, t0).Clock)
}

func TestGameStateAndGameOver(t *testing.T) {
	s := started(t)
	require.NoError(t, s.Resign("bob", t0.Add(2*time.Second)))

	gs := GameState(s, t0.Add(3*time.Second))
	assert.Equal(t, game.StatusEnded, gs.Status)
	assert.Equal(t, []string{"e4"}, gs.Moves)
	assert.False(t, gs.Clock.Running)
	require.NotNil(t, gs.Result)
	assert.Equal(t, chess.White, gs.Result.Winner)

	over := GameOver(s)
	assert.Equal(t, game.ReasonResignation, over.Reason)
	assert.Equal(t, s.Version, over.Version)

	// the stopped clock does not keep running on the receiver
	state := gs.Clock.State(0)
	assert.Equal(t, chess.Remaining(chess.Black, state, t0.Add(time.Hour)), gs.Clock.BlackRemaining)
}

func TestInvitationPayloadAppliesLazyExpiry(t *testing.T) {
	inv, err := invitation.New("i1", "alice", "bob", invitation.Params{Mode: game.ModeTraining}, t0, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, invitation.StatusPending, Invitation(inv, t0.Add(time.Minute)).Status)
	assert.Equal(t, invitation.StatusExpired, Invitation(inv, t0.Add(time.Minute+time.Millisecond)).Status)
}
