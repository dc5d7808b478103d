package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tecu23/chess-sessions/pkg/events"
	"github.com/tecu23/chess-sessions/pkg/messages"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 30 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 25 * time.Second

	maxMessageSize = 4096
)

// Connection is one authenticated websocket client
type Connection struct {
	ID       uuid.UUID
	PlayerID string

	ws   *websocket.Conn // The underlying Websocket connection
	hub  *Hub
	send chan []byte // Buffered channel of outbound messages.

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	subs map[string]*topicSub

	publisher *events.Publisher
	logger    *zap.Logger
}

type topicSub struct {
	sub *events.Subscription
	// resync is set for session topics, which get a snapshot after eviction
	resync bool
}

func NewConnection(
	ws *websocket.Conn,
	hub *Hub,
	playerID string,
	publisher *events.Publisher,
	logger *zap.Logger,
) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		ID:        uuid.New(),
		PlayerID:  playerID,
		ws:        ws,
		hub:       hub,
		send:      make(chan []byte, 256), // buffered for outgoing messages
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		subs:      make(map[string]*topicSub),
		publisher: publisher,
		logger:    logger.With(zap.String("player_id", playerID)),
	}
}

// ReadPump handles inbound messages from the client
func (c *Connection) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("read error", zap.Error(err))
			}
			return
		}

		// We only handle text
		if msgType != websocket.TextMessage {
			continue
		}

		var inbound messages.InboundMessage
		if err := json.Unmarshal(msg, &inbound); err != nil {
			c.logger.Debug("Failed to parse inbound JSON", zap.Error(err))
			c.hub.sendError(c, fmt.Errorf("%w: %v", ErrMalformed, err))
			continue
		}

		c.hub.handleInbound(c, inbound)
	}
}

// WritePump handles outbound messages to the client and keeps it alive with
// pings
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.ws.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		}
	}
}

// SendJSON is a helper for sending JSON to this connection. It drops the
// message once the connection is closed.
func (c *Connection) SendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Error marshaling JSON", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	case <-c.done:
	}
}

func (c *Connection) sendSnapshot(snap *snapshot) {
	for _, msg := range snap.msgs {
		c.SendJSON(msg)
	}
}

// subscribe attaches the connection to topic. When load is given its
// snapshot is sent before any event from the topic, and events the snapshot
// already covers are skipped.
func (c *Connection) subscribe(topic string, load func() (*snapshot, error)) error {
	c.mu.Lock()
	if c.closed() {
		c.mu.Unlock()
		return nil
	}
	if _, ok := c.subs[topic]; ok {
		c.mu.Unlock()
		if load == nil {
			return nil
		}
		snap, err := load()
		if err != nil {
			return err
		}
		c.sendSnapshot(snap)
		return nil
	}

	ts := &topicSub{
		sub:    c.publisher.SubscribeTopic(topic, events.DefaultBuffer),
		resync: load != nil,
	}
	c.subs[topic] = ts
	c.mu.Unlock()

	var after int64
	if load != nil {
		snap, err := load()
		if err != nil {
			c.unsubscribe(topic)
			return err
		}
		c.sendSnapshot(snap)
		after = snap.version
	}

	go c.forward(ts, after)
	return nil
}

// forward copies topic events to the client until the subscription closes.
// An evicted subscription is replaced with a fresh one.
func (c *Connection) forward(ts *topicSub, after int64) {
	for ev := range ts.sub.C {
		if ev.Version != 0 && ev.Version <= after {
			continue
		}
		c.SendJSON(ev.Payload)
	}

	c.mu.Lock()
	current := c.subs[ts.sub.Topic] == ts
	if current {
		delete(c.subs, ts.sub.Topic)
	}
	c.mu.Unlock()

	if !current || !ts.sub.Evicted() || c.closed() {
		return
	}

	id := ""
	if ts.resync {
		id = sessionID(ts.sub.Topic)
	}
	c.hub.resubscribe(c, ts.sub.Topic, id)
}

func (c *Connection) unsubscribe(topic string) {
	c.mu.Lock()
	ts := c.subs[topic]
	delete(c.subs, topic)
	c.mu.Unlock()

	if ts != nil {
		c.publisher.Unsubscribe(ts.sub)
	}
}

// Topics lists the topics the connection currently follows
func (c *Connection) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	topics := make([]string, 0, len(c.subs))
	for t := range c.subs {
		topics = append(topics, t)
	}
	return topics
}

func (c *Connection) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// close releases the subscriptions and stops the pumps. It reports whether
// this call did the closing.
func (c *Connection) close() bool {
	first := false
	c.closeOnce.Do(func() {
		first = true
		close(c.done)
		c.cancel()

		c.mu.Lock()
		subs := c.subs
		c.subs = make(map[string]*topicSub)
		c.mu.Unlock()

		for _, ts := range subs {
			c.publisher.Unsubscribe(ts.sub)
		}
	})

	return first
}

// sessionID strips the topic prefix
func sessionID(topic string) string {
	_, id, _ := strings.Cut(topic, ":")
	return id
}
