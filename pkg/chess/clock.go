// Package chess defines the side and clock primitives shared by the server and
// the clock predictor running at the edge.
//
// The clock is a pure value: nothing here reads the wall clock, every
// computation takes the current time as an argument.
package chess

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Unlimited is reported as the remaining time of an untimed clock. It is never
// confused with a flagged clock because it is not zero.
const Unlimited int64 = math.MaxInt64

// Limits applied to time controls submitted by clients
const (
	MaxBaseSeconds      = 3 * 60 * 60
	MaxIncrementSeconds = 180
)

// ErrInvalidTimeControl is returned for out of range clock settings
var ErrInvalidTimeControl = errors.New("invalid time control")

// TimeControl defines the time settings for a game
type TimeControl struct {
	BaseSeconds      int64 `json:"baseSeconds"`
	IncrementSeconds int64 `json:"incrementSeconds"`
}

// Validate checks the base and increment ranges
func (tc TimeControl) Validate() error {
	if tc.BaseSeconds <= 0 || tc.BaseSeconds > MaxBaseSeconds {
		return fmt.Errorf("%w: base must be between 1 and %d seconds", ErrInvalidTimeControl, MaxBaseSeconds)
	}
	if tc.IncrementSeconds < 0 || tc.IncrementSeconds > MaxIncrementSeconds {
		return fmt.Errorf(
			"%w: increment must be between 0 and %d seconds",
			ErrInvalidTimeControl,
			MaxIncrementSeconds,
		)
	}

	return nil
}

// ClockState is the stored clock of a timed game. LastMoveAt stays zero until
// the first move starts the clock.
type ClockState struct {
	BaseMs      int64     `json:"baseMs"`
	IncrementMs int64     `json:"incrementMs"`
	WhiteMs     int64     `json:"whiteMs"`
	BlackMs     int64     `json:"blackMs"`
	Active      Color     `json:"active"`
	LastMoveAt  time.Time `json:"lastMoveAt"`
	Stopped     bool      `json:"stopped,omitempty"`
}

// NewClockState creates a stopped clock with white to move
func NewClockState(tc TimeControl) *ClockState {
	base := tc.BaseSeconds * 1000

	return &ClockState{
		BaseMs:      base,
		IncrementMs: tc.IncrementSeconds * 1000,
		WhiteMs:     base,
		BlackMs:     base,
		Active:      White,
	}
}

// Started reports whether the first move has been made
func (s *ClockState) Started() bool {
	return !s.LastMoveAt.IsZero()
}

// Clone returns an independent copy
func (s *ClockState) Clone() *ClockState {
	if s == nil {
		return nil
	}

	c := *s
	return &c
}

func (s *ClockState) stored(side Color) int64 {
	if side == White {
		return s.WhiteMs
	}

	return s.BlackMs
}

func (s *ClockState) set(side Color, ms int64) {
	if side == White {
		s.WhiteMs = ms
	} else {
		s.BlackMs = ms
	}
}

// elapsed is the running time since the last move, never negative
func (s *ClockState) elapsed(now time.Time) int64 {
	if !s.Started() || s.Stopped {
		return 0
	}

	d := now.Sub(s.LastMoveAt).Milliseconds()
	if d < 0 {
		return 0
	}

	return d
}

// Remaining returns the time left for side at now. A nil state is an untimed
// clock and reports Unlimited.
func Remaining(side Color, s *ClockState, now time.Time) int64 {
	if s == nil {
		return Unlimited
	}

	stored := s.stored(side)
	if side != s.Active {
		return stored
	}

	return max(0, stored-s.elapsed(now))
}

// IsExpired reports whether side has flagged. Untimed clocks never expire.
func IsExpired(side Color, s *ClockState, now time.Time) bool {
	if s == nil {
		return false
	}

	return Remaining(side, s, now) <= 0
}

// ChargeMove returns the clock after mover completed a move at now. Elapsed time
// is clamped at zero before the increment is credited. The first move of a game
// only starts the clock.
func ChargeMove(s ClockState, mover Color, now time.Time) ClockState {
	if s.Started() {
		left := max(0, s.stored(mover)-s.elapsed(now))
		s.set(mover, left+s.IncrementMs)
	}

	s.Active = mover.Opp()
	s.LastMoveAt = now

	return s
}

// Stop freezes the clock at now, charging the running side up to that instant
func Stop(s ClockState, now time.Time) ClockState {
	if s.Stopped {
		return s
	}

	s.set(s.Active, Remaining(s.Active, &s, now))
	if s.Started() {
		s.LastMoveAt = now
	}
	s.Stopped = true

	return s
}

// ClockTick is the clock as seen at a single instant
type ClockTick struct {
	White       int64
	Black       int64
	ActiveColor Color
}

// Tick evaluates both sides at now
func Tick(s *ClockState, now time.Time) ClockTick {
	if s == nil {
		return ClockTick{White: Unlimited, Black: Unlimited, ActiveColor: White}
	}

	return ClockTick{
		White:       Remaining(White, s, now),
		Black:       Remaining(Black, s, now),
		ActiveColor: s.Active,
	}
}

// FormatClockTime formats a duration in milliseconds to a user-friendly string (e.g., "1:30")
func FormatClockTime(timeMs int64) string {
	if timeMs == Unlimited {
		return "--:--"
	}
	if timeMs < 0 {
		timeMs = 0
	}

	totalSeconds := timeMs / 1000
	minutes := totalSeconds / 60
	seconds := totalSeconds % 60

	// For times less than 10 seconds, show decimal
	if timeMs < 10000 {
		tenths := (timeMs % 1000) / 100
		return fmt.Sprintf("%d.%d", totalSeconds, tenths)
	}

	if minutes >= 60 {
		return fmt.Sprintf("%d:%02d:%02d", minutes/60, minutes%60, seconds)
	}

	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
