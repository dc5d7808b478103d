package chess

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return t0.Add(time.Duration(seconds * float64(time.Second)))
}

func TestTimeControlValidate(t *testing.T) {
	cases := []struct {
		name    string
		tc      TimeControl
		wantErr bool
	}{
		{"blitz", TimeControl{BaseSeconds: 300, IncrementSeconds: 3}, false},
		{"no increment", TimeControl{BaseSeconds: 60}, false},
		{"zero base", TimeControl{BaseSeconds: 0, IncrementSeconds: 2}, true},
		{"negative increment", TimeControl{BaseSeconds: 60, IncrementSeconds: -1}, true},
		{"too long", TimeControl{BaseSeconds: MaxBaseSeconds + 1}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tc.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTimeControl)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRemainingBeforeFirstMove(t *testing.T) {
	s := NewClockState(TimeControl{BaseSeconds: 300, IncrementSeconds: 3})

	assert.Equal(t, int64(300_000), Remaining(White, s, at(1000)))
	assert.Equal(t, int64(300_000), Remaining(Black, s, at(1000)))
	assert.False(t, IsExpired(White, s, at(1000)))
}

func TestRemainingOnlyRunsForActiveSide(t *testing.T) {
	s := NewClockState(TimeControl{BaseSeconds: 60})
	started := ChargeMove(*s, White, at(0))

	assert.Equal(t, Black, started.Active)
	assert.Equal(t, int64(60_000), Remaining(White, &started, at(20)))
	assert.Equal(t, int64(40_000), Remaining(Black, &started, at(20)))
}

func TestRemainingIsMonotonicAndClamped(t *testing.T) {
	s := NewClockState(TimeControl{BaseSeconds: 5})
	started := ChargeMove(*s, White, at(0))

	prev := Remaining(Black, &started, at(0))
	for i := 1; i <= 20; i++ {
		cur := Remaining(Black, &started, at(float64(i)*0.5))
		assert.LessOrEqual(t, cur, prev)
		assert.GreaterOrEqual(t, cur, int64(0))
		prev = cur
	}

	assert.Equal(t, int64(0), Remaining(Black, &started, at(100)))
	assert.True(t, IsExpired(Black, &started, at(5)))
	assert.False(t, IsExpired(White, &started, at(100)))
}

func TestRemainingIgnoresBackwardsTime(t *testing.T) {
	s := ChargeMove(*NewClockState(TimeControl{BaseSeconds: 10}), White, at(10))

	assert.Equal(t, int64(10_000), Remaining(Black, &s, at(5)))
}

func TestUntimedClockIsUnlimited(t *testing.T) {
	assert.Equal(t, Unlimited, Remaining(White, nil, at(1e6)))
	assert.NotZero(t, Remaining(Black, nil, at(1e6)))
	assert.False(t, IsExpired(White, nil, at(1e9)))

	tick := Tick(nil, at(0))
	assert.Equal(t, Unlimited, tick.White)
	assert.Equal(t, Unlimited, tick.Black)
}

func TestChargeMoveScenario(t *testing.T) {
	s := *NewClockState(TimeControl{BaseSeconds: 300, IncrementSeconds: 3})

	// white's first move starts the clock without charging
	s = ChargeMove(s, White, at(0))
	assert.Equal(t, int64(300_000), s.WhiteMs)
	assert.Equal(t, Black, s.Active)
	assert.Equal(t, at(0), s.LastMoveAt)

	s = ChargeMove(s, Black, at(10))
	assert.Equal(t, int64(293_000), s.BlackMs)
	assert.Equal(t, int64(300_000), s.WhiteMs)

	// white ran from the black move at t=10 to t=25
	s = ChargeMove(s, White, at(25))
	assert.Equal(t, int64(288_000), s.WhiteMs)
	assert.Equal(t, int64(293_000), s.BlackMs)
	assert.Equal(t, Black, s.Active)
}

func TestChargeMoveZeroDelta(t *testing.T) {
	s := ChargeMove(*NewClockState(TimeControl{BaseSeconds: 60, IncrementSeconds: 2}), White, at(0))
	s = ChargeMove(s, Black, at(7))
	require.Equal(t, int64(55_000), s.BlackMs)

	// a second charge at the same instant charges nothing
	again := ChargeMove(s, White, s.LastMoveAt)
	assert.Equal(t, s.WhiteMs+s.IncrementMs, again.WhiteMs)
	assert.Equal(t, s.BlackMs, again.BlackMs)
}

func TestChargeMoveClampsBeforeIncrement(t *testing.T) {
	s := ChargeMove(*NewClockState(TimeControl{BaseSeconds: 10, IncrementSeconds: 5}), White, at(0))

	s = ChargeMove(s, Black, at(30))
	assert.Equal(t, int64(5_000), s.BlackMs)

	exact := ChargeMove(*NewClockState(TimeControl{BaseSeconds: 10, IncrementSeconds: 1}), White, at(0))
	exact = ChargeMove(exact, Black, at(10))
	assert.Equal(t, int64(1_000), exact.BlackMs)
}

func TestChargeMoveDoesNotTouchWaitingSide(t *testing.T) {
	s := ChargeMove(*NewClockState(TimeControl{BaseSeconds: 60, IncrementSeconds: 1}), White, at(0))
	before := s.WhiteMs

	s = ChargeMove(s, Black, at(12))
	assert.Equal(t, before, s.WhiteMs)
}

func TestFormatClockTime(t *testing.T) {
	cases := []struct {
		ms   int64
		want string
	}{
		{90_000, "1:30"},
		{9_450, "9.4"},
		{-20, "0.0"},
		{3_723_000, "1:02:03"},
		{Unlimited, "--:--"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatClockTime(tc.ms))
	}
}

func TestToMoveParity(t *testing.T) {
	for n := 0; n < 50; n++ {
		assert.Equal(t, n%2 == 0, ToMove(n) == White)
	}
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("b")
	require.NoError(t, err)
	assert.Equal(t, Black, c)
	assert.Equal(t, White, c.Opp())

	_, err = ParseColor("green")
	assert.Error(t, err)
}

func TestStopFreezesRunningSide(t *testing.T) {
	s := ChargeMove(*NewClockState(TimeControl{BaseSeconds: 60}), White, at(0))

	stopped := Stop(s, at(20))
	assert.True(t, stopped.Stopped)
	assert.Equal(t, int64(40_000), stopped.BlackMs)
	assert.Equal(t, int64(40_000), Remaining(Black, &stopped, at(500)))
	assert.Equal(t, stopped, Stop(stopped, at(900)))
}
