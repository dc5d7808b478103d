package invitation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tecu23/chess-sessions/pkg/chess"
	"github.com/tecu23/chess-sessions/pkg/game"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return t0.Add(time.Duration(seconds * float64(time.Second)))
}

func blitz() Params {
	return Params{
		Mode:        game.ModeTimed,
		Clock:       &chess.TimeControl{BaseSeconds: 180, IncrementSeconds: 2},
		SenderColor: game.PreferBlack,
	}
}

func pending(t *testing.T) *Invitation {
	t.Helper()

	inv, err := New("i1", "alice", "bob", blitz(), at(0), DefaultTTL)
	require.NoError(t, err)
	return inv
}

func TestNewValidates(t *testing.T) {
	_, err := New("i", "alice", "alice", blitz(), at(0), DefaultTTL)
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = New("i", "alice", "", blitz(), at(0), DefaultTTL)
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = New("i", "alice", "bob", Params{Mode: game.ModeTimed}, at(0), DefaultTTL)
	assert.ErrorIs(t, err, ErrInvalidParams)

	inv, err := New("i", "alice", "bob", Params{Mode: game.ModeTraining}, at(0), DefaultTTL)
	require.NoError(t, err)
	assert.Equal(t, game.PreferRandom, inv.Params.SenderColor)
	assert.Equal(t, at(300), inv.ExpiresAt)
}

func TestLazyExpiry(t *testing.T) {
	inv := pending(t)

	assert.Equal(t, StatusPending, inv.EffectiveStatus(at(299)))
	assert.Equal(t, StatusPending, inv.EffectiveStatus(at(300)))
	assert.Equal(t, StatusExpired, inv.EffectiveStatus(at(301)))
	assert.False(t, inv.Actionable(at(301)))
	assert.Equal(t, StatusPending, inv.Status)
}

func TestAcceptBeforeAndAfterExpiry(t *testing.T) {
	late := pending(t)
	err := late.Accept("bob", "g1", at(301))
	assert.ErrorIs(t, err, ErrExpired)
	assert.ErrorIs(t, err, ErrNotPending)
	assert.Equal(t, StatusPending, late.Status)
	assert.Empty(t, late.GameID)

	inv := pending(t)
	require.NoError(t, inv.Accept("bob", "g1", at(299)))
	assert.Equal(t, StatusAccepted, inv.Status)
	assert.Equal(t, "g1", inv.GameID)
	require.NotNil(t, inv.RespondedAt)
	assert.Equal(t, at(299), *inv.RespondedAt)
}

func TestTerminalStatusIsImmutable(t *testing.T) {
	inv := pending(t)
	require.NoError(t, inv.Decline("bob", at(10)))

	assert.ErrorIs(t, inv.Accept("bob", "g", at(11)), ErrNotPending)
	assert.ErrorIs(t, inv.Cancel("alice", at(11)), ErrNotPending)
	assert.ErrorIs(t, inv.Decline("bob", at(11)), ErrNotPending)
	assert.False(t, inv.Expire(at(1000)))
	assert.Equal(t, StatusDeclined, inv.Status)
}

func TestRoleChecks(t *testing.T) {
	inv := pending(t)

	assert.ErrorIs(t, inv.Accept("alice", "g", at(1)), ErrNotRecipient)
	assert.ErrorIs(t, inv.Decline("carol", at(1)), ErrNotRecipient)
	assert.ErrorIs(t, inv.Cancel("bob", at(1)), ErrNotSender)

	require.NoError(t, inv.Cancel("alice", at(2)))
	assert.Equal(t, StatusCancelled, inv.Status)
}

func TestExpirePromotesOnlyPastDue(t *testing.T) {
	inv := pending(t)

	assert.False(t, inv.Expire(at(100)))
	assert.True(t, inv.Expire(at(400)))
	assert.Equal(t, StatusExpired, inv.Status)
	assert.False(t, inv.Expire(at(500)))
}

func TestGameParamsMakeSenderHost(t *testing.T) {
	inv := pending(t)
	p := inv.GameParams()

	assert.Equal(t, "alice", p.HostID)
	assert.Equal(t, game.PreferBlack, p.ColorPreference)
	assert.True(t, inv.Between("bob", "alice"))
	assert.False(t, inv.Between("bob", "carol"))
}
