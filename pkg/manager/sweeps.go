package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tecu23/chess-sessions/pkg/events"
	"github.com/tecu23/chess-sessions/pkg/game"
	"github.com/tecu23/chess-sessions/pkg/invitation"
	"github.com/tecu23/chess-sessions/pkg/metrics"
	"github.com/tecu23/chess-sessions/pkg/repository"
)

// SweepReport counts what one pass changed
type SweepReport struct {
	TimedOut           int `json:"timedOut"`
	Abandoned          int `json:"abandoned"`
	TrainingsEnded     int `json:"trainingsEnded"`
	InvitationsExpired int `json:"invitationsExpired"`
	Removed            int `json:"removed"`
}

// SweepTimeouts ends every active timed game whose side to move has flagged
func (m *Manager) SweepTimeouts(ctx context.Context) (int, error) {
	metrics.SweepRuns.WithLabelValues("timeout").Inc()

	games, err := m.store.ListGames(ctx)
	if err != nil {
		return 0, fmt.Errorf("list games: %w", err)
	}

	var n int
	for _, s := range games {
		if s.Status != game.StatusActive || s.Clock == nil {
			continue
		}

		expired, err := m.ExpireOnTime(ctx, s.ID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			m.logger.Error("failed to expire game", zap.String("session_id", s.ID), zap.Error(err))
			continue
		}
		if expired {
			n++
		}
	}

	return n, nil
}

func (m *Manager) stale(updated, now time.Time) bool {
	return now.Sub(updated) > m.opts.StaleAfter
}

// SweepStale abandons games and ends trainings nobody has touched within the
// staleness threshold. Each record is re-checked under its key.
func (m *Manager) SweepStale(ctx context.Context) (abandoned, ended int, err error) {
	metrics.SweepRuns.WithLabelValues("stale").Inc()

	now := m.Now()
	games, err := m.store.ListGames(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list games: %w", err)
	}

	for _, s := range games {
		if s.Status.Terminal() || !m.stale(s.UpdatedAt, now) {
			continue
		}

		var done bool
		_, err := m.updateGame(ctx, s.ID, func(s *game.Session, now time.Time) ([]events.Event, error) {
			if !m.stale(s.UpdatedAt, now) || !s.Abandon(now) {
				return nil, nil
			}
			done = true
			return snapshotEvents(s, now), nil
		})
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return abandoned, ended, err
		}
		if done {
			abandoned++
		}
	}

	trainings, err := m.store.ListTrainings(ctx)
	if err != nil {
		return abandoned, ended, fmt.Errorf("list trainings: %w", err)
	}

	for _, t := range trainings {
		if t.Status == game.TrainingEnded || !m.stale(t.UpdatedAt, now) {
			continue
		}

		var done bool
		_, err := m.updateTraining(ctx, t.ID, func(t *game.Training, now time.Time) ([]events.Event, error) {
			if !m.stale(t.UpdatedAt, now) || !t.End(now) {
				return nil, nil
			}
			done = true
			return []events.Event{trainingSnapshot(t)}, nil
		})
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return abandoned, ended, err
		}
		if done {
			ended++
		}
	}

	return abandoned, ended, nil
}

// SweepInvitations promotes lazily expired invitations and notifies both
// players once per invitation
func (m *Manager) SweepInvitations(ctx context.Context) (int, error) {
	metrics.SweepRuns.WithLabelValues("invitations").Inc()

	invs, err := m.store.ListInvitations(ctx)
	if err != nil {
		return 0, fmt.Errorf("list invitations: %w", err)
	}

	now := m.Now()
	var n int
	for _, inv := range invs {
		if inv.Status != invitation.StatusPending || inv.Actionable(now) {
			continue
		}

		if m.expireInvitation(ctx, inv.ID) {
			n++
		}
	}

	return n, nil
}

func (m *Manager) expireInvitation(ctx context.Context, id string) bool {
	unlock := m.locks.lock(invitationKey(id))
	defer unlock()

	inv, err := m.store.GetInvitation(ctx, id)
	if err != nil {
		return false
	}

	return m.expireLocked(ctx, inv, m.Now())
}

// SweepRetention archives and deletes terminal records older than the
// retention threshold
func (m *Manager) SweepRetention(ctx context.Context) (int, error) {
	metrics.SweepRuns.WithLabelValues("retention").Inc()

	now := m.Now()
	old := func(t time.Time) bool { return now.Sub(t) > m.opts.Retention }

	var n int

	games, err := m.store.ListGames(ctx)
	if err != nil {
		return 0, fmt.Errorf("list games: %w", err)
	}
	for _, s := range games {
		if !s.Status.Terminal() || !old(s.UpdatedAt) {
			continue
		}
		if err := m.removeGame(ctx, s.ID); err != nil {
			m.logger.Error("failed to remove game", zap.String("session_id", s.ID), zap.Error(err))
			continue
		}
		n++
	}

	trainings, err := m.store.ListTrainings(ctx)
	if err != nil {
		return n, fmt.Errorf("list trainings: %w", err)
	}
	for _, t := range trainings {
		if t.Status != game.TrainingEnded || !old(t.UpdatedAt) {
			continue
		}
		if err := m.store.DeleteTraining(ctx, t.ID); err != nil {
			return n, fmt.Errorf("delete training %s: %w", t.ID, err)
		}
		n++
	}

	invs, err := m.store.ListInvitations(ctx)
	if err != nil {
		return n, fmt.Errorf("list invitations: %w", err)
	}
	for _, inv := range invs {
		if !inv.Status.Terminal() || inv.RespondedAt == nil || !old(*inv.RespondedAt) {
			continue
		}
		if err := m.store.DeleteInvitation(ctx, inv.ID); err != nil {
			return n, fmt.Errorf("delete invitation %s: %w", inv.ID, err)
		}
		n++
	}

	return n, nil
}

// removeGame archives a finished game, then deletes it. A failed archive
// keeps the game for the next pass.
func (m *Manager) removeGame(ctx context.Context, id string) error {
	unlock := m.locks.lock(gameKey(id))
	defer unlock()

	s, err := m.store.GetGame(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if m.opts.Archive != nil {
		if err := m.opts.Archive.SaveGame(ctx, s); err != nil {
			return fmt.Errorf("archive game %s: %w", id, err)
		}
	}

	return m.store.DeleteGame(ctx, id)
}

// Sweep runs every sweep once
func (m *Manager) Sweep(ctx context.Context) (SweepReport, error) {
	var r SweepReport
	var err error

	if r.TimedOut, err = m.SweepTimeouts(ctx); err != nil {
		return r, err
	}
	if r.InvitationsExpired, err = m.SweepInvitations(ctx); err != nil {
		return r, err
	}
	if r.Abandoned, r.TrainingsEnded, err = m.SweepStale(ctx); err != nil {
		return r, err
	}
	if r.Removed, err = m.SweepRetention(ctx); err != nil {
		return r, err
	}

	return r, nil
}

// Run drives the sweeps until ctx is cancelled. Timeouts are checked every
// timeoutEvery, independent of client activity; the other sweeps run every
// sweepEvery.
func (m *Manager) Run(ctx context.Context, timeoutEvery, sweepEvery time.Duration) {
	timeouts := time.NewTicker(timeoutEvery)
	defer timeouts.Stop()

	sweeps := time.NewTicker(sweepEvery)
	defer sweeps.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-timeouts.C:
			if n, err := m.SweepTimeouts(ctx); err != nil {
				m.logger.Error("timeout sweep failed", zap.Error(err))
			} else if n > 0 {
				m.logger.Info("timeout sweep", zap.Int("timed_out", n))
			}

		case <-sweeps.C:
			n, err := m.SweepInvitations(ctx)
			if err != nil {
				m.logger.Error("invitation sweep failed", zap.Error(err))
			}

			abandoned, ended, err := m.SweepStale(ctx)
			if err != nil {
				m.logger.Error("stale sweep failed", zap.Error(err))
			}

			removed, err := m.SweepRetention(ctx)
			if err != nil {
				m.logger.Error("retention sweep failed", zap.Error(err))
			}

			m.logger.Debug("sweep finished",
				zap.Int("invitations_expired", n),
				zap.Int("abandoned", abandoned),
				zap.Int("trainings_ended", ended),
				zap.Int("removed", removed),
			)
		}
	}
}
