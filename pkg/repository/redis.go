package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tecu23/chess-sessions/pkg/game"
	"github.com/tecu23/chess-sessions/pkg/invitation"
)

const keyPrefix = "chess:"

func gameKey(id string) string       { return keyPrefix + "game:" + id }
func trainingKey(id string) string   { return keyPrefix + "training:" + id }
func invitationKey(id string) string { return keyPrefix + "invitation:" + id }
func roomKey(code string) string     { return keyPrefix + "room:" + code }

const (
	gamesIndex       = keyPrefix + "index:games"
	trainingsIndex   = keyPrefix + "index:trainings"
	invitationsIndex = keyPrefix + "index:invitations"
)

// RedisRepository stores records as JSON values with set indexes for listing
type RedisRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisRepository wraps an existing client
func NewRedisRepository(client *redis.Client, logger *zap.Logger) *RedisRepository {
	return &RedisRepository{client: client, logger: logger}
}

// DialRedis connects to rawURL (redis:// or rediss://) and pings it
func DialRedis(ctx context.Context, rawURL string, logger *zap.Logger) (*RedisRepository, error) {
	opts, err := ParseRedisURL(rawURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisRepository(client, logger), nil
}

// ParseRedisURL converts a redis:// or rediss:// URL into client options.
// rediss enables TLS.
func ParseRedisURL(raw string) (*redis.Options, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}

func (r *RedisRepository) get(ctx context.Context, key string, v any) error {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func setJSON(ctx context.Context, pipe redis.Pipeliner, key, index, id string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	pipe.Set(ctx, key, raw, 0)
	pipe.SAdd(ctx, index, id)
	return nil
}

func roomRefValue(ref RoomRef) string {
	return string(ref.Kind) + ":" + ref.ID
}

func saveGame(ctx context.Context, pipe redis.Pipeliner, s *game.Session) error {
	if err := setJSON(ctx, pipe, gameKey(s.ID), gamesIndex, s.ID, s); err != nil {
		return err
	}
	if s.RoomCode != "" {
		pipe.Set(ctx, roomKey(s.RoomCode), roomRefValue(RoomRef{Kind: RoomGame, ID: s.ID}), 0)
	}

	return nil
}

// GetGame retrieves a game by ID
func (r *RedisRepository) GetGame(ctx context.Context, id string) (*game.Session, error) {
	var s game.Session
	if err := r.get(ctx, gameKey(id), &s); err != nil {
		return nil, err
	}

	return &s, nil
}

// SaveGame saves a game and indexes its room code
func (r *RedisRepository) SaveGame(ctx context.Context, s *game.Session) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return saveGame(ctx, pipe, s)
	})
	if err != nil {
		return fmt.Errorf("save game %s: %w", s.ID, err)
	}

	return nil
}

// DeleteGame removes a game and frees its room code
func (r *RedisRepository) DeleteGame(ctx context.Context, id string) error {
	s, err := r.GetGame(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, gameKey(id), roomKey(s.RoomCode))
		pipe.SRem(ctx, gamesIndex, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete game %s: %w", id, err)
	}

	return nil
}

// ListGames returns every indexed game
func (r *RedisRepository) ListGames(ctx context.Context) ([]*game.Session, error) {
	return list(ctx, r, gamesIndex, r.GetGame)
}

// GetTraining retrieves a training by ID
func (r *RedisRepository) GetTraining(ctx context.Context, id string) (*game.Training, error) {
	var t game.Training
	if err := r.get(ctx, trainingKey(id), &t); err != nil {
		return nil, err
	}

	return &t, nil
}

// SaveTraining saves a training and indexes its room code
func (r *RedisRepository) SaveTraining(ctx context.Context, t *game.Training) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := setJSON(ctx, pipe, trainingKey(t.ID), trainingsIndex, t.ID, t); err != nil {
			return err
		}
		if t.RoomCode != "" {
			pipe.Set(ctx, roomKey(t.RoomCode), roomRefValue(RoomRef{Kind: RoomTraining, ID: t.ID}), 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save training %s: %w", t.ID, err)
	}

	return nil
}

// DeleteTraining removes a training and frees its room code
func (r *RedisRepository) DeleteTraining(ctx context.Context, id string) error {
	t, err := r.GetTraining(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, trainingKey(id), roomKey(t.RoomCode))
		pipe.SRem(ctx, trainingsIndex, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete training %s: %w", id, err)
	}

	return nil
}

// ListTrainings returns every indexed training
func (r *RedisRepository) ListTrainings(ctx context.Context) ([]*game.Training, error) {
	return list(ctx, r, trainingsIndex, r.GetTraining)
}

// GetInvitation retrieves an invitation by ID
func (r *RedisRepository) GetInvitation(ctx context.Context, id string) (*invitation.Invitation, error) {
	var inv invitation.Invitation
	if err := r.get(ctx, invitationKey(id), &inv); err != nil {
		return nil, err
	}

	return &inv, nil
}

// SaveInvitation saves an invitation
func (r *RedisRepository) SaveInvitation(ctx context.Context, inv *invitation.Invitation) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return setJSON(ctx, pipe, invitationKey(inv.ID), invitationsIndex, inv.ID, inv)
	})
	if err != nil {
		return fmt.Errorf("save invitation %s: %w", inv.ID, err)
	}

	return nil
}

// DeleteInvitation removes an invitation
func (r *RedisRepository) DeleteInvitation(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, invitationKey(id))
		pipe.SRem(ctx, invitationsIndex, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete invitation %s: %w", id, err)
	}

	return nil
}

// ListInvitations returns every indexed invitation
func (r *RedisRepository) ListInvitations(ctx context.Context) ([]*invitation.Invitation, error) {
	return list(ctx, r, invitationsIndex, r.GetInvitation)
}

// SaveAcceptedInvitation writes the session and the invitation in one
// MULTI/EXEC transaction
func (r *RedisRepository) SaveAcceptedInvitation(ctx context.Context, inv *invitation.Invitation, s *game.Session) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := saveGame(ctx, pipe, s); err != nil {
			return err
		}
		return setJSON(ctx, pipe, invitationKey(inv.ID), invitationsIndex, inv.ID, inv)
	})
	if err != nil {
		return fmt.Errorf("accept invitation %s: %w", inv.ID, err)
	}

	return nil
}

// LookupRoomCode resolves a room code
func (r *RedisRepository) LookupRoomCode(ctx context.Context, code string) (RoomRef, error) {
	raw, err := r.client.Get(ctx, roomKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return RoomRef{}, fmt.Errorf("room %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return RoomRef{}, fmt.Errorf("lookup room %s: %w", code, err)
	}

	kind, id, ok := strings.Cut(raw, ":")
	if !ok {
		return RoomRef{}, fmt.Errorf("malformed room entry %q", raw)
	}

	return RoomRef{Kind: RoomKind(kind), ID: id}, nil
}

// Ping checks the connection
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// list loads every member of index, dropping ids whose value has vanished
func list[T any](ctx context.Context, r *RedisRepository, index string, get func(context.Context, string) (T, error)) ([]T, error) {
	ids, err := r.client.SMembers(ctx, index).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", index, err)
	}

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		v, err := get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			r.logger.Warn("dropping stale index entry", zap.String("index", index), zap.String("id", id))
			r.client.SRem(ctx, index, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}

	return out, nil
}
