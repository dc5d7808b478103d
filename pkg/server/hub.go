// Package server carries the websocket side of the session service: the hub
// that tracks live connections and routes their messages to the registry.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tecu23/chess-sessions/pkg/events"
	"github.com/tecu23/chess-sessions/pkg/game"
	"github.com/tecu23/chess-sessions/pkg/manager"
	"github.com/tecu23/chess-sessions/pkg/messages"
	"github.com/tecu23/chess-sessions/pkg/metrics"
	"github.com/tecu23/chess-sessions/pkg/repository"
)

// requestTimeout bounds every registry call made for a websocket message
const requestTimeout = 5 * time.Second

// Hub keeps track of all active connections. Registration runs on the hub
// goroutine; inbound messages are handled on the sending connection's read
// goroutine.
type Hub struct {
	mu          sync.RWMutex
	connections map[*Connection]struct{}

	register   chan *Connection
	unregister chan *Connection
	stopped    chan struct{}

	manager   *manager.Manager
	publisher *events.Publisher
	logger    *zap.Logger
}

// NewHub creates a new hub
func NewHub(m *manager.Manager, publisher *events.Publisher, logger *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[*Connection]struct{}),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stopped:     make(chan struct{}),
		manager:     m,
		publisher:   publisher,
		logger:      logger,
	}
}

// Run is the main execution of the hub. It closes every connection when ctx
// is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case conn := <-h.register:
			h.registerConnection(conn)

		case conn := <-h.unregister:
			h.unregisterConnection(conn)

		case <-ctx.Done():
			h.Shutdown()
			return
		}
	}
}

// Register adds conn to the hub. It reports false once the hub has stopped.
func (h *Hub) Register(conn *Connection) bool {
	select {
	case h.register <- conn:
		return true
	case <-h.stopped:
		return false
	}
}

// Unregister removes conn
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-conn.done:
	case <-h.stopped:
	}
}

// Count is the number of registered connections
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Shutdown closes every connection
func (h *Hub) Shutdown() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.connections))
	for c := range h.connections {
		conns = append(conns, c)
	}
	h.connections = make(map[*Connection]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		h.closeConnection(c)
	}
	h.logger.Info("Hub shut down", zap.Int("connections", len(conns)))
}

func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	h.connections[conn] = struct{}{}
	count := len(h.connections)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	h.logger.Debug("New connection registered",
		zap.String("connection_id", conn.ID.String()),
		zap.String("player_id", conn.PlayerID),
		zap.Int("connections", count))

	conn.SendJSON(messages.OutboundMessage{
		Event: messages.EventConnected,
		Payload: messages.ConnectedPayload{
			ConnectionID: conn.ID.String(),
			PlayerID:     conn.PlayerID,
		},
	})

	_ = conn.subscribe(events.PlayerTopic(conn.PlayerID), nil)
	go h.sendPendingInvitations(conn)
}

func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	_, ok := h.connections[conn]
	delete(h.connections, conn)
	count := len(h.connections)
	h.mu.Unlock()

	if !ok {
		return
	}

	h.closeConnection(conn)
	h.logger.Debug("Connection unregistered",
		zap.String("connection_id", conn.ID.String()),
		zap.Int("connections", count))
}

func (h *Hub) closeConnection(conn *Connection) {
	if !conn.close() {
		return
	}

	metrics.WSConnections.Dec()
	h.publisher.Publish(events.Event{
		Type: events.EventConnectionClosed,
		Payload: map[string]string{
			"connection_id": conn.ID.String(),
			"player_id":     conn.PlayerID,
		},
	})
}

// sendPendingInvitations replays the invitations a player missed while
// offline
func (h *Hub) sendPendingInvitations(conn *Connection) {
	ctx, cancel := context.WithTimeout(conn.ctx, requestTimeout)
	defer cancel()

	invs, err := h.manager.ListInvitations(ctx, conn.PlayerID)
	if err != nil {
		h.logger.Warn("Failed to list pending invitations", zap.String("player_id", conn.PlayerID), zap.Error(err))
		return
	}

	now := h.manager.Now()
	for _, inv := range invs {
		if inv.RecipientID != conn.PlayerID {
			continue
		}
		conn.SendJSON(messages.OutboundMessage{
			Event:   messages.EventNewInvitation,
			Payload: messages.Invitation(inv, now),
		})
	}
}

// handleInbound decodes one client message and routes it to the registry
func (h *Hub) handleInbound(conn *Connection, msg messages.InboundMessage) {
	ctx, cancel := context.WithTimeout(conn.ctx, requestTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case messages.TypePing:
		conn.SendJSON(messages.OutboundMessage{
			Event:   messages.EventPong,
			Payload: messages.PongPayload{ServerTime: h.manager.Now().UnixMilli()},
		})

	case messages.TypeSubscribe:
		var p messages.SessionPayload
		if err = decode(msg.Payload, &p); err == nil {
			err = h.subscribe(ctx, conn, p.SessionID)
		}

	case messages.TypeUnsubscribe:
		var p messages.SessionPayload
		if err = decode(msg.Payload, &p); err == nil {
			conn.unsubscribe(events.GameTopic(p.SessionID))
			conn.unsubscribe(events.TrainingTopic(p.SessionID))
		}

	case messages.TypeSync:
		var p messages.SessionPayload
		if err = decode(msg.Payload, &p); err == nil {
			var snap *snapshot
			if snap, err = h.snapshot(ctx, p.SessionID); err == nil {
				conn.sendSnapshot(snap)
			}
		}

	case messages.TypeMakeMove:
		var p messages.MakeMovePayload
		if err = decode(msg.Payload, &p); err == nil {
			err = h.move(ctx, conn.PlayerID, p)
		}

	case messages.TypeClaimTimeout:
		var p messages.SessionPayload
		if err = decode(msg.Payload, &p); err == nil {
			_, err = h.manager.ClaimTimeout(ctx, p.SessionID, conn.PlayerID)
		}

	case messages.TypeResign:
		var p messages.SessionPayload
		if err = decode(msg.Payload, &p); err == nil {
			_, err = h.manager.Resign(ctx, p.SessionID, conn.PlayerID)
		}

	default:
		err = fmt.Errorf("%w: unknown message type %q", ErrMalformed, msg.Type)
	}

	if err != nil {
		h.sendError(conn, err)
	}
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrMalformed)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// move routes to the game or, failing that, the training with the id
func (h *Hub) move(ctx context.Context, playerID string, p messages.MakeMovePayload) error {
	_, err := h.manager.SubmitMove(ctx, p.SessionID, playerID, p.Move)
	if errors.Is(err, repository.ErrNotFound) {
		_, err = h.manager.TrainingMove(ctx, p.SessionID, playerID, p.Move)
	}
	return err
}

// snapshot is the full state of a game or training, ready to send
type snapshot struct {
	topic   string
	version int64
	msgs    []messages.OutboundMessage
}

func (h *Hub) snapshot(ctx context.Context, id string) (*snapshot, error) {
	s, err := h.manager.GetGame(ctx, id)
	if err == nil {
		return gameSnapshot(s, h.manager.Now()), nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	t, err := h.manager.GetTraining(ctx, id)
	if err != nil {
		return nil, err
	}

	return &snapshot{
		topic:   events.TrainingTopic(t.ID),
		version: t.Version,
		msgs: []messages.OutboundMessage{
			{Event: messages.EventTrainingState, Payload: messages.TrainingState(t)},
		},
	}, nil
}

func gameSnapshot(s *game.Session, now time.Time) *snapshot {
	snap := &snapshot{
		topic:   events.GameTopic(s.ID),
		version: s.Version,
		msgs: []messages.OutboundMessage{
			{Event: messages.EventGameState, Payload: messages.GameState(s, now)},
			{Event: messages.EventClockState, Payload: messages.ClockState(s, now)},
		},
	}
	if s.Status.Terminal() {
		snap.msgs = append(snap.msgs, messages.OutboundMessage{
			Event:   messages.EventGameOver,
			Payload: messages.GameOver(s),
		})
	}

	return snap
}

// subscribe attaches conn to the session's topic. The first read only
// resolves whether id is a game or a training; the snapshot sent to the
// client is read again after the subscription exists so no transition falls
// between the two.
func (h *Hub) subscribe(ctx context.Context, conn *Connection, id string) error {
	snap, err := h.snapshot(ctx, id)
	if err != nil {
		return err
	}

	return conn.subscribe(snap.topic, func() (*snapshot, error) {
		return h.snapshot(ctx, id)
	})
}

// resubscribe restores a subscription that was evicted for falling behind
func (h *Hub) resubscribe(conn *Connection, topic, id string) {
	ctx, cancel := context.WithTimeout(conn.ctx, requestTimeout)
	defer cancel()

	h.logger.Info("Resubscribing evicted connection",
		zap.String("connection_id", conn.ID.String()),
		zap.String("topic", topic))

	var err error
	if id == "" {
		err = conn.subscribe(topic, nil)
	} else {
		err = h.subscribe(ctx, conn, id)
	}
	if err != nil {
		h.sendError(conn, err)
	}
}

func (h *Hub) sendError(conn *Connection, err error) {
	status, code := Classify(err)
	msg := err.Error()
	if status >= 500 {
		h.logger.Error("Websocket request failed",
			zap.String("connection_id", conn.ID.String()),
			zap.Error(err))
		msg = "internal server error"
	}

	conn.SendJSON(messages.OutboundMessage{
		Event:   messages.EventError,
		Payload: messages.ErrorPayload{Message: msg, Code: code},
	})
}
