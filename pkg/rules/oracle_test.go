package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyAcceptsUCIAndSAN(t *testing.T) {
	o := NewChessOracle()

	res, err := o.Apply("", "e2e4")
	require.NoError(t, err)
	assert.Equal(t, "e4", res.SAN)
	assert.Equal(t, "e2e4", res.UCI)
	assert.Contains(t, res.Position, "4P3")
	assert.Contains(t, res.Position, " b ")
	assert.Equal(t, NoOutcome, res.Outcome)

	res, err = o.Apply(res.Position, "e5")
	require.NoError(t, err)
	assert.Equal(t, "e5", res.SAN)
	assert.Contains(t, res.Position, " w ")
}

func TestApplySpecialMoves(t *testing.T) {
	o := NewChessOracle()

	tests := []struct {
		name     string
		position string
		move     string
		san      string
		uci      string
		fen      string
	}{
		{"castling from UCI", "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1", "e1g1", "O-O", "e1g1", "R4RK1 b"},
		{"castling from SAN", "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1", "O-O-O", "O-O-O", "e1c1", "2KR3R b"},
		{"promotion from UCI", "8/P7/8/8/8/8/8/k6K w - - 0 1", "a7a8q", "a8=Q", "a7a8q", "Q7/8"},
		{"capture from SAN", "rnbqkbnr/ppp1pppp/8/3p4/4P3/8/PPPP1PPP/RNBQKBNR w KQkq d6 0 2", "exd5", "exd5", "e4d5", "3P4"},
		{"uppercase UCI", StartPosition, "G1F3", "Nf3", "g1f3", "5N2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := o.Apply(tt.position, tt.move)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(res.SAN, tt.san), res.SAN)
			assert.Equal(t, tt.uci, res.UCI)
			assert.Contains(t, res.Position, tt.fen)
		})
	}
}

func TestApplyRejectsIllegalMoves(t *testing.T) {
	o := NewChessOracle()

	for _, mv := range []string{"e2e5", "Ke2", "", "zz", "exd5"} {
		_, err := o.Apply(StartPosition, mv)
		assert.ErrorIs(t, err, ErrIllegalMove, mv)
	}
}

func TestApplyRejectsBadPosition(t *testing.T) {
	_, err := NewChessOracle().Apply("not a fen", "e2e4")
	assert.ErrorIs(t, err, ErrInvalidPosition)
}

func TestApplyReportsCheckmate(t *testing.T) {
	o := NewChessOracle()

	pos := StartPosition
	var res Result
	var err error
	for _, mv := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		res, err = o.Apply(pos, mv)
		require.NoError(t, err)
		pos = res.Position
	}

	assert.Equal(t, BlackWon, res.Outcome)
	assert.Equal(t, "checkmate", res.Method)
	assert.True(t, strings.HasPrefix(res.SAN, "Qh4"))

	_, err = o.Apply(pos, "a2a3")
	assert.ErrorIs(t, err, ErrIllegalMove)
}

func TestNormalize(t *testing.T) {
	o := NewChessOracle()

	fen, err := o.Normalize("startpos")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fen, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w"))

	_, err = o.Normalize("8/8/8")
	assert.ErrorIs(t, err, ErrInvalidPosition)
}
