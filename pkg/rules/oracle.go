// Package rules adapts a chess rules library to the narrow oracle the session
// state machines consume: given a position and a move, is it legal and what is
// the resulting position.
package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartPosition is the standard initial position
const StartPosition = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	// ErrIllegalMove is returned when the move cannot be played in the position
	ErrIllegalMove = errors.New("illegal move")
	// ErrInvalidPosition is returned for positions that cannot be parsed
	ErrInvalidPosition = errors.New("invalid position")
)

// Outcome of a position after a move
type Outcome string

// Possible outcomes reported by the oracle
const (
	NoOutcome Outcome = ""
	WhiteWon  Outcome = "1-0"
	BlackWon  Outcome = "0-1"
	Draw      Outcome = "1/2-1/2"
)

// Result is the oracle's verdict for a legal move
type Result struct {
	Position string  // resulting position (FEN)
	SAN      string  // the move in standard algebraic notation
	UCI      string  // the move in long algebraic (from-to) notation
	Outcome  Outcome // set when the move ends the game
	Method   string  // how the game ended, e.g. "checkmate"
}

// Oracle validates moves. Implementations must be in-process and fast: they are
// called while a session lock is held.
//
// The oracle only sees the current position, so draws by repetition are not
// detected.
type Oracle interface {
	// Normalize validates a starting position and returns its canonical form.
	// An empty position or "startpos" selects the standard start.
	Normalize(position string) (string, error)
	// Apply plays move in position.
	Apply(position, move string) (Result, error)
}

// ChessOracle is the Oracle backed by corentings/chess
type ChessOracle struct{}

// NewChessOracle creates the default oracle
func NewChessOracle() *ChessOracle {
	return &ChessOracle{}
}

// Normalize parses position and returns its FEN
func (o *ChessOracle) Normalize(position string) (string, error) {
	g, err := load(position)
	if err != nil {
		return "", err
	}

	return g.FEN(), nil
}

// Apply plays move, accepting UCI ("e2e4") first and SAN ("e4") second
func (o *ChessOracle) Apply(position, move string) (Result, error) {
	g, err := load(position)
	if err != nil {
		return Result{}, err
	}
	if g.Outcome() != nchess.NoOutcome {
		return Result{}, fmt.Errorf("%w: game already decided", ErrIllegalMove)
	}

	move = strings.TrimSpace(move)
	if move == "" {
		return Result{}, fmt.Errorf("%w: empty move", ErrIllegalMove)
	}

	before := g.Position()

	san := move
	if m, ok := legalUCI(before, strings.ToLower(move)); ok {
		san = nchess.AlgebraicNotation{}.Encode(before, m)
	}
	if err := g.PushMove(san, nil); err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrIllegalMove, move)
	}

	moves := g.Moves()
	played := moves[len(moves)-1]

	res := Result{
		Position: g.FEN(),
		SAN:      nchess.AlgebraicNotation{}.Encode(before, played),
		UCI:      nchess.UCINotation{}.Encode(before, played),
	}

	switch g.Outcome() {
	case nchess.WhiteWon:
		res.Outcome = WhiteWon
	case nchess.BlackWon:
		res.Outcome = BlackWon
	case nchess.Draw:
		res.Outcome = Draw
	}
	if res.Outcome != NoOutcome {
		res.Method = methodName(g.Method())
	}

	return res, nil
}

// legalUCI decodes a from-to move and returns it only if it is one of the
// position's legal moves.
func legalUCI(pos *nchess.Position, move string) (*nchess.Move, bool) {
	m, err := nchess.UCINotation{}.Decode(nil, move)
	if err != nil {
		return nil, false
	}

	for _, v := range pos.ValidMoves() {
		if v.S1() == m.S1() && v.S2() == m.S2() && v.Promo() == m.Promo() {
			return &v, true
		}
	}
	return nil, false
}

func load(position string) (*nchess.Game, error) {
	position = strings.TrimSpace(position)
	if position == "" || position == "startpos" {
		return nchess.NewGame(), nil
	}

	opt, err := nchess.FEN(position)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}

	return nchess.NewGame(opt), nil
}

func methodName(m nchess.Method) string {
	switch m {
	case nchess.Checkmate:
		return "checkmate"
	case nchess.Stalemate:
		return "stalemate"
	case nchess.InsufficientMaterial:
		return "insufficient_material"
	case nchess.SeventyFiveMoveRule:
		return "seventy_five_move_rule"
	default:
		return "draw"
	}
}
