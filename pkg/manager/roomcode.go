package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tecu23/chess-sessions/pkg/repository"
)

const (
	// RoomCodeAlphabet leaves out characters that are easy to misread
	RoomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	RoomCodeLength   = 6

	maxRoomCodeAttempts = 32
)

// ErrRoomCodesExhausted is returned when no free code was found
var ErrRoomCodesExhausted = errors.New("could not allocate a room code")

// NormalizeRoomCode upper-cases and trims user input
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// newRoomCode draws codes until one is unused. Must be called with roomsKey
// held, and the code must be saved before releasing it.
func (m *Manager) newRoomCode(ctx context.Context) (string, error) {
	buf := make([]byte, RoomCodeLength)

	for range maxRoomCodeAttempts {
		for i := range buf {
			buf[i] = RoomCodeAlphabet[m.rand.IntN(len(RoomCodeAlphabet))]
		}
		code := string(buf)

		_, err := m.store.LookupRoomCode(ctx, code)
		if errors.Is(err, repository.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("lookup room code: %w", err)
		}
	}

	return "", ErrRoomCodesExhausted
}
