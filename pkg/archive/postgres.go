// Package archive keeps finished games in postgres after the registry drops
// them.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tecu23/chess-sessions/pkg/game"
)

const schema = `
CREATE TABLE IF NOT EXISTS archived_games (
	id            TEXT PRIMARY KEY,
	room_code     TEXT NOT NULL,
	mode          TEXT NOT NULL,
	status        TEXT NOT NULL,
	white_id      TEXT NOT NULL DEFAULT '',
	black_id      TEXT NOT NULL DEFAULT '',
	winner        TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL DEFAULT '',
	moves         JSONB NOT NULL,
	final_position TEXT NOT NULL,
	invitation_id TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL,
	archived_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Record is an archived game as read back
type Record struct {
	ID            string
	RoomCode      string
	Mode          game.Mode
	Status        game.Status
	WhiteID       string
	BlackID       string
	Winner        string
	Reason        string
	Moves         []string
	FinalPosition string
	InvitationID  string
	CreatedAt     time.Time
	FinishedAt    time.Time
}

// PostgresArchive writes finished sessions to the archived_games table
type PostgresArchive struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresArchive wraps an open pool
func NewPostgresArchive(db *pgxpool.Pool, logger *zap.Logger) *PostgresArchive {
	return &PostgresArchive{db: db, logger: logger}
}

// Connect opens a pool, checks it and creates the table if needed
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresArchive, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping archive database: %w", err)
	}

	a := NewPostgresArchive(db, logger)
	if err := a.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return a, nil
}

// EnsureSchema creates the archive table
func (a *PostgresArchive) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create archive schema: %w", err)
	}
	return nil
}

// SaveGame stores a finished session. Saving the same session twice keeps
// the first copy.
func (a *PostgresArchive) SaveGame(ctx context.Context, s *game.Session) error {
	if !s.Status.Terminal() {
		return fmt.Errorf("archive game %s: status %s is not terminal", s.ID, s.Status)
	}

	moves, err := json.Marshal(s.Moves)
	if err != nil {
		return fmt.Errorf("marshal moves: %w", err)
	}

	var winner, reason string
	if s.Result != nil {
		winner = string(s.Result.Winner)
		reason = string(s.Result.Reason)
	}

	tag, err := a.db.Exec(ctx,
		`INSERT INTO archived_games
			(id, room_code, mode, status, white_id, black_id, winner, reason, moves, final_position, invitation_id, created_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO NOTHING`,
		s.ID, s.RoomCode, string(s.Mode), string(s.Status),
		s.WhiteID, s.BlackID, winner, reason,
		moves, s.Position, s.InvitationID,
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("archive game %s: %w", s.ID, err)
	}

	a.logger.Debug("Game archived",
		zap.String("game_id", s.ID),
		zap.Bool("inserted", tag.RowsAffected() == 1))

	return nil
}

// GetGame reads an archived game back
func (a *PostgresArchive) GetGame(ctx context.Context, id string) (*Record, error) {
	var (
		r     Record
		moves []byte
	)

	err := a.db.QueryRow(ctx,
		`SELECT id, room_code, mode, status, white_id, black_id, winner, reason, moves, final_position, invitation_id, created_at, finished_at
		 FROM archived_games WHERE id = $1`, id,
	).Scan(&r.ID, &r.RoomCode, &r.Mode, &r.Status, &r.WhiteID, &r.BlackID, &r.Winner, &r.Reason,
		&moves, &r.FinalPosition, &r.InvitationID, &r.CreatedAt, &r.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("archived game %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read archived game %s: %w", id, err)
	}

	if err := json.Unmarshal(moves, &r.Moves); err != nil {
		return nil, fmt.Errorf("decode moves of %s: %w", id, err)
	}

	return &r, nil
}

// ErrNotFound is returned by GetGame for unknown ids
var ErrNotFound = errors.New("archived game not found")

// Ping checks the connection
func (a *PostgresArchive) Ping(ctx context.Context) error {
	return a.db.Ping(ctx)
}

// Close releases the pool
func (a *PostgresArchive) Close() {
	a.db.Close()
}
