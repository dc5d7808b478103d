package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tecu23/chess-sessions/pkg/events"
	"github.com/tecu23/chess-sessions/pkg/game"
	"github.com/tecu23/chess-sessions/pkg/invitation"
	"github.com/tecu23/chess-sessions/pkg/messages"
	"github.com/tecu23/chess-sessions/pkg/metrics"
)

// SendInvitation creates a pending invitation unless the pair already has an
// actionable one in either direction
func (m *Manager) SendInvitation(ctx context.Context, senderID, recipientID string, p invitation.Params) (*invitation.Invitation, error) {
	unlock := m.locks.lock(pairKey(senderID, recipientID))
	defer unlock()

	now := m.Now()
	inv, err := invitation.New(m.opts.NewID(), senderID, recipientID, p, now, m.opts.InvitationTTL)
	if err != nil {
		return nil, err
	}

	existing, err := m.store.ListInvitations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	for _, other := range existing {
		if other.Between(senderID, recipientID) && other.Actionable(now) {
			metrics.Invitations.WithLabelValues("duplicate").Inc()
			return nil, fmt.Errorf("%w: invitation %s", invitation.ErrDuplicatePending, other.ID)
		}
	}

	if err := m.store.SaveInvitation(ctx, inv); err != nil {
		return nil, fmt.Errorf("save invitation %s: %w", inv.ID, err)
	}

	metrics.Invitations.WithLabelValues("sent").Inc()
	m.logger.Info("invitation sent",
		zap.String("invitation_id", inv.ID),
		zap.String("sender", senderID),
		zap.String("recipient", recipientID),
	)
	m.publish(invitationEvents(events.EventInvitationCreated, messages.EventNewInvitation,
		messages.Invitation(inv, now), recipientID)...)

	return inv, nil
}

// GetInvitation returns a copy of the invitation
func (m *Manager) GetInvitation(ctx context.Context, id string) (*invitation.Invitation, error) {
	return m.store.GetInvitation(ctx, id)
}

// ListInvitations returns the actionable invitations playerID sent or
// received, oldest first
func (m *Manager) ListInvitations(ctx context.Context, playerID string) ([]*invitation.Invitation, error) {
	all, err := m.store.ListInvitations(ctx)
	if err != nil {
		return nil, err
	}

	now := m.Now()
	out := make([]*invitation.Invitation, 0)
	for _, inv := range all {
		if inv.Involves(playerID) && inv.Actionable(now) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

// invitationTx mutates a loaded invitation. Returning no events means nothing
// changed.
type invitationTx func(inv *invitation.Invitation, now time.Time) ([]events.Event, error)

func (m *Manager) updateInvitation(ctx context.Context, id string, tx invitationTx) (*invitation.Invitation, error) {
	unlock := m.locks.lock(invitationKey(id))
	defer unlock()

	inv, err := m.store.GetInvitation(ctx, id)
	if err != nil {
		return nil, err
	}

	now := m.Now()
	evs, err := tx(inv, now)
	if errors.Is(err, invitation.ErrExpired) {
		m.expireLocked(ctx, inv, now)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if len(evs) == 0 {
		return inv, nil
	}

	if err := m.store.SaveInvitation(ctx, inv); err != nil {
		return nil, fmt.Errorf("save invitation %s: %w", id, err)
	}
	m.publish(evs...)

	return inv, nil
}

// expireLocked promotes a lazily expired invitation and notifies both
// players. Must be called with the invitation's key held.
func (m *Manager) expireLocked(ctx context.Context, inv *invitation.Invitation, now time.Time) bool {
	if !inv.Expire(now) {
		return false
	}

	if err := m.store.SaveInvitation(ctx, inv); err != nil {
		m.logger.Error("failed to save expired invitation", zap.String("invitation_id", inv.ID), zap.Error(err))
		return false
	}

	metrics.Invitations.WithLabelValues("expired").Inc()
	m.publish(invitationNotice(events.EventInvitationExpired, messages.EventInvitationExpired, inv, now)...)
	return true
}

// AcceptInvitation creates the game and marks the invitation accepted. Both
// records are written together; readers never see an accepted invitation
// without its game.
func (m *Manager) AcceptInvitation(ctx context.Context, id, recipientID string) (*invitation.Invitation, *game.Session, error) {
	var session *game.Session

	inv, err := m.updateInvitation(ctx, id, func(inv *invitation.Invitation, now time.Time) ([]events.Event, error) {
		if err := inv.CheckAccept(recipientID, now); err != nil {
			return nil, err
		}

		s, err := m.createAccepted(ctx, inv, recipientID, now)
		if err != nil {
			return nil, err
		}
		session = s

		metrics.Invitations.WithLabelValues("accepted").Inc()
		metrics.SessionsCreated.WithLabelValues(string(s.Mode)).Inc()
		m.logger.Info("invitation accepted",
			zap.String("invitation_id", inv.ID),
			zap.String("session_id", s.ID),
			zap.String("room_code", s.RoomCode),
		)

		evs := invitationNotice(events.EventInvitationAccepted, messages.EventInvitationAccepted, inv, now)
		return append(evs, invitationEvents(events.EventGameReady, messages.EventGameReady, messages.GameReadyPayload{
			SessionID:    s.ID,
			RoomCode:     s.RoomCode,
			InvitationID: inv.ID,
		}, inv.SenderID, inv.RecipientID)...), nil
	})
	if err != nil {
		return nil, nil, err
	}

	return inv, session, nil
}

// createAccepted builds the active session for inv and stores it with the
// accepted invitation
func (m *Manager) createAccepted(ctx context.Context, inv *invitation.Invitation, recipientID string, now time.Time) (*game.Session, error) {
	unlock := m.locks.lock(roomsKey)
	defer unlock()

	code, err := m.newRoomCode(ctx)
	if err != nil {
		return nil, err
	}

	s, err := game.New(m.opts.NewID(), code, inv.GameParams(), m.rand, now)
	if err != nil {
		return nil, err
	}
	s.InvitationID = inv.ID
	if err := s.Join(recipientID, now); err != nil {
		return nil, err
	}

	if err := inv.Accept(recipientID, s.ID, now); err != nil {
		return nil, err
	}

	if err := m.store.SaveAcceptedInvitation(ctx, inv, s); err != nil {
		return nil, fmt.Errorf("save accepted invitation %s: %w", inv.ID, err)
	}

	return s, nil
}

// DeclineInvitation is the recipient refusing
func (m *Manager) DeclineInvitation(ctx context.Context, id, recipientID string) (*invitation.Invitation, error) {
	return m.updateInvitation(ctx, id, func(inv *invitation.Invitation, now time.Time) ([]events.Event, error) {
		if err := inv.Decline(recipientID, now); err != nil {
			return nil, err
		}

		metrics.Invitations.WithLabelValues("declined").Inc()
		return invitationNotice(events.EventInvitationDeclined, messages.EventInvitationDeclined, inv, now), nil
	})
}

// CancelInvitation is the sender withdrawing
func (m *Manager) CancelInvitation(ctx context.Context, id, senderID string) (*invitation.Invitation, error) {
	return m.updateInvitation(ctx, id, func(inv *invitation.Invitation, now time.Time) ([]events.Event, error) {
		if err := inv.Cancel(senderID, now); err != nil {
			return nil, err
		}

		metrics.Invitations.WithLabelValues("cancelled").Inc()
		return invitationNotice(events.EventInvitationCancelled, messages.EventInvitationCancelled, inv, now), nil
	})
}
