package chess

import "fmt"

// Color represents one side of the board
type Color string

// Possible color variations in a chess game
const (
	White Color = "white"
	Black Color = "black"
)

// Opp returns the opposite color for the given color.
func (c Color) Opp() Color {
	if c == White {
		return Black
	}

	return White
}

// Valid reports whether c names a side
func (c Color) Valid() bool {
	return c == White || c == Black
}

// ParseColor accepts the long and the single letter forms
func ParseColor(s string) (Color, error) {
	switch s {
	case "white", "w", "WHITE":
		return White, nil
	case "black", "b", "BLACK":
		return Black, nil
	}

	return "", fmt.Errorf("unknown color %q", s)
}

// ToMove returns the side to move after the given number of half-moves from the
// standard starting position.
func ToMove(plies int) Color {
	if plies%2 == 0 {
		return White
	}

	return Black
}
