package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tecu23/chess-sessions/pkg/chess"
	"github.com/tecu23/chess-sessions/pkg/events"
	"github.com/tecu23/chess-sessions/pkg/game"
	"github.com/tecu23/chess-sessions/pkg/invitation"
	"github.com/tecu23/chess-sessions/pkg/manager"
	"github.com/tecu23/chess-sessions/pkg/messages"
	"github.com/tecu23/chess-sessions/pkg/repository"
	"github.com/tecu23/chess-sessions/pkg/rules"
)

type wireMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type testEnv struct {
	hub *Hub
	m   *manager.Manager
	pub *events.Publisher
	srv *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zap.NewNop()
	pub := events.NewPublisher()
	m := manager.NewManager(logger, pub, repository.NewInMemoryRepository(logger), rules.NewChessOracle(), manager.Options{})
	hub := NewHub(m, pub, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		conn := NewConnection(ws, hub, r.URL.Query().Get("player"), pub, logger)
		if !hub.Register(conn) {
			ws.Close()
			return
		}
		go conn.WritePump()
		go conn.ReadPump()
	}))

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	return &testEnv{hub: hub, m: m, pub: pub, srv: srv}
}

func (e *testEnv) dial(t *testing.T, player string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/?player=" + player
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	msg := readUntil(t, ws, messages.EventConnected)
	var p messages.ConnectedPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	require.Equal(t, player, p.PlayerID)

	return ws
}

func send(t *testing.T, ws *websocket.Conn, typ string, payload interface{}) {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(messages.InboundMessage{Type: typ, Payload: raw}))
}

// readUntil skips messages until one named event arrives
func readUntil(t *testing.T, ws *websocket.Conn, event string) wireMessage {
	t.Helper()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg wireMessage
		require.NoError(t, ws.ReadJSON(&msg), "waiting for %s", event)
		if msg.Event == event {
			return msg
		}
	}
}

func activeGame(t *testing.T, m *manager.Manager) *game.Session {
	t.Helper()

	ctx := context.Background()
	s, err := m.CreateGame(ctx, game.CreateParams{
		HostID:          "alice",
		ColorPreference: game.PreferWhite,
		Mode:            game.ModeTimed,
		Clock:           &chess.TimeControl{BaseSeconds: 300, IncrementSeconds: 2},
	})
	require.NoError(t, err)

	s, err = m.JoinGame(ctx, s.ID, "bob")
	require.NoError(t, err)

	return s
}

func TestSubscribeSendsSnapshotThenMoves(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")
	s := activeGame(t, env.m)

	send(t, alice, messages.TypeSubscribe, messages.SessionPayload{SessionID: s.ID})
	send(t, bob, messages.TypeSubscribe, messages.SessionPayload{SessionID: s.ID})

	msg := readUntil(t, alice, messages.EventGameState)
	var state messages.GameStatePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &state))
	assert.Equal(t, game.StatusActive, state.Status)
	assert.Equal(t, chess.White, state.SideToMove)

	msg = readUntil(t, alice, messages.EventClockState)
	var clock messages.ClockStatePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &clock))
	assert.Equal(t, int64(300_000), clock.WhiteRemaining)
	assert.False(t, clock.Running)
	readUntil(t, bob, messages.EventClockState)

	send(t, alice, messages.TypeMakeMove, messages.MakeMovePayload{SessionID: s.ID, Move: "e4"})

	for _, ws := range []*websocket.Conn{alice, bob} {
		msg = readUntil(t, ws, messages.EventMove)
		var move messages.MovePayload
		require.NoError(t, json.Unmarshal(msg.Payload, &move))
		assert.Equal(t, "alice", move.PlayerID)
		assert.Equal(t, "e4", move.Move)
		assert.Equal(t, s.Version+1, move.Version)
	}

	send(t, alice, messages.TypeMakeMove, messages.MakeMovePayload{SessionID: s.ID, Move: "d4"})
	msg = readUntil(t, alice, messages.EventError)
	var e messages.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &e))
	assert.Equal(t, "NOT_YOUR_TURN", e.Code)

	send(t, bob, messages.TypeResign, messages.SessionPayload{SessionID: s.ID})
	msg = readUntil(t, alice, messages.EventGameOver)
	var over messages.GameOverPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &over))
	assert.Equal(t, chess.White, over.Winner)
	assert.Equal(t, game.ReasonResignation, over.Reason)
}

func TestSyncAndErrors(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice")

	send(t, alice, messages.TypePing, struct{}{})
	msg := readUntil(t, alice, messages.EventPong)
	var pong messages.PongPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &pong))
	assert.Positive(t, pong.ServerTime)

	send(t, alice, messages.TypeSync, messages.SessionPayload{SessionID: "missing"})
	msg = readUntil(t, alice, messages.EventError)
	var e messages.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &e))
	assert.Equal(t, "NOT_FOUND", e.Code)

	send(t, alice, "DANCE", struct{}{})
	msg = readUntil(t, alice, messages.EventError)
	require.NoError(t, json.Unmarshal(msg.Payload, &e))
	assert.Equal(t, "MALFORMED", e.Code)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg = readUntil(t, alice, messages.EventError)
	require.NoError(t, json.Unmarshal(msg.Payload, &e))
	assert.Equal(t, "MALFORMED", e.Code)

	tr, err := env.m.CreateTraining(context.Background(), "alice", "", true)
	require.NoError(t, err)
	send(t, alice, messages.TypeSync, messages.SessionPayload{SessionID: tr.ID})
	msg = readUntil(t, alice, messages.EventTrainingState)
	var ts messages.TrainingStatePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &ts))
	assert.Equal(t, tr.RoomCode, ts.RoomCode)
}

func TestInvitationsReachPlayerTopic(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice")

	inv, err := env.m.SendInvitation(context.Background(), "bob", "alice", invitation.Params{
		Mode:        game.ModeTimed,
		Clock:       &chess.TimeControl{BaseSeconds: 60},
		SenderColor: game.PreferBlack,
	})
	require.NoError(t, err)

	msg := readUntil(t, alice, messages.EventNewInvitation)
	var p messages.InvitationPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Equal(t, inv.ID, p.ID)
	assert.Equal(t, invitation.StatusPending, p.Status)

	_, s, err := env.m.AcceptInvitation(context.Background(), inv.ID, "alice")
	require.NoError(t, err)

	msg = readUntil(t, alice, messages.EventGameReady)
	var ready messages.GameReadyPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &ready))
	assert.Equal(t, s.ID, ready.SessionID)
	assert.Equal(t, s.RoomCode, ready.RoomCode)
}

func TestPendingInvitationsReplayedOnConnect(t *testing.T) {
	env := newTestEnv(t)

	inv, err := env.m.SendInvitation(context.Background(), "bob", "alice", invitation.Params{Mode: game.ModeTraining})
	require.NoError(t, err)

	alice := env.dial(t, "alice")
	msg := readUntil(t, alice, messages.EventNewInvitation)
	var p messages.InvitationPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Equal(t, inv.ID, p.ID)
}

func TestEvictedSubscriberIsResynced(t *testing.T) {
	env := newTestEnv(t)
	s := activeGame(t, env.m)

	conn := NewConnection(nil, env.hub, "carol", env.pub, zap.NewNop())
	require.NoError(t, env.hub.subscribe(context.Background(), conn, s.ID))

	// Nobody drains conn.send, so the forwarder stalls and the topic buffer
	// overflows.
	topic := events.GameTopic(s.ID)
	for i := 0; i < cap(conn.send)+events.DefaultBuffer+8; i++ {
		env.pub.Publish(events.Event{
			Type:    events.EventStateChanged,
			Topic:   topic,
			Payload: messages.OutboundMessage{Event: "FILLER"},
		})
	}

	resynced := make(chan struct{})
	go func() {
		defer close(resynced)
		seenFiller := false
		for data := range conn.send {
			var msg wireMessage
			if json.Unmarshal(data, &msg) != nil {
				continue
			}
			if msg.Event == "FILLER" {
				seenFiller = true
			}
			if seenFiller && msg.Event == messages.EventGameState {
				return
			}
		}
	}()

	select {
	case <-resynced:
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after eviction")
	}

	assert.Eventually(t, func() bool {
		return env.pub.Subscribers(topic) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, conn.Topics(), topic)

	conn.close()
	assert.Equal(t, 0, env.pub.Subscribers(topic))
}

func TestShutdownClosesConnections(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice")

	require.Eventually(t, func() bool { return env.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	env.hub.Shutdown()
	assert.Equal(t, 0, env.hub.Count())

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := alice.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error %v", err)
			break
		}
	}
	assert.Equal(t, 0, env.pub.Subscribers(events.PlayerTopic("alice")))
}
