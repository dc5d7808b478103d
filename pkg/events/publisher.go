package events

import (
	"sync"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

// Define event types
const (
	EventSessionCreated      EventType = "SESSION_CREATED"
	EventPlayerJoined        EventType = "PLAYER_JOINED"
	EventMoveMade            EventType = "MOVE_MADE"
	EventGameEnded           EventType = "GAME_ENDED"
	EventStateChanged        EventType = "STATE_CHANGED"
	EventTrainingUpdated     EventType = "TRAINING_UPDATED"
	EventInvitationCreated   EventType = "INVITATION_CREATED"
	EventInvitationAccepted  EventType = "INVITATION_ACCEPTED"
	EventInvitationDeclined  EventType = "INVITATION_DECLINED"
	EventInvitationCancelled EventType = "INVITATION_CANCELLED"
	EventInvitationExpired   EventType = "INVITATION_EXPIRED"
	EventGameReady           EventType = "GAME_READY"
	EventSubscriberEvicted   EventType = "SUBSCRIBER_EVICTED"
	EventConnectionClosed    EventType = "CONNECTION_CLOSED"
)

// DefaultBuffer is the per-subscriber queue length used when none is given
const DefaultBuffer = 64

// Topic names for session, training and player streams
func GameTopic(id string) string     { return "game:" + id }
func TrainingTopic(id string) string { return "training:" + id }
func PlayerTopic(id string) string   { return "user:" + id }

// Event represents an event in the system
type Event struct {
	Type    EventType
	Topic   string // Optional, events without a topic only reach typed handlers
	GameID  string // Optional, can be empty for non-game events
	Version int64
	Payload interface{}
}

// Handler is a function that processes events
type Handler func(event Event)

// Subscription is one consumer of a topic. Events arrive on C in publish
// order. C is closed on Unsubscribe or when the subscriber falls behind and is
// evicted.
type Subscription struct {
	ID    string
	Topic string
	C     <-chan Event

	ch      chan Event
	evicted bool
}

// Evicted reports whether the subscription was dropped for overflowing its
// buffer. Only meaningful once C is closed.
func (s *Subscription) Evicted() bool {
	return s.evicted
}

// Publisher is the central event publisher
type Publisher struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Handler

	topicMu sync.Mutex
	topics  map[string]map[string]*Subscription
}

// NewPublisher creates a new event publisher
func NewPublisher() *Publisher {
	return &Publisher{
		subscribers: make(map[EventType][]Handler),
		topics:      make(map[string]map[string]*Subscription),
	}
}

// Subscribe registers a handler for a specific event type
func (p *Publisher) Subscribe(eventType EventType, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.subscribers[eventType] = append(p.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for all event types
func (p *Publisher) SubscribeAll(handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Special event type for "all events"
	p.subscribers["*"] = append(p.subscribers["*"], handler)
}

// SubscribeTopic opens a buffered subscription to topic
func (p *Publisher) SubscribeTopic(topic string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	ch := make(chan Event, buffer)
	sub := &Subscription{
		ID:    uuid.NewString(),
		Topic: topic,
		C:     ch,
		ch:    ch,
	}

	p.topicMu.Lock()
	defer p.topicMu.Unlock()

	if p.topics[topic] == nil {
		p.topics[topic] = make(map[string]*Subscription)
	}
	p.topics[topic][sub.ID] = sub

	return sub
}

// Unsubscribe closes sub. Calling it more than once is harmless.
func (p *Publisher) Unsubscribe(sub *Subscription) {
	p.topicMu.Lock()
	defer p.topicMu.Unlock()

	p.remove(sub)
}

// remove must be called with topicMu held
func (p *Publisher) remove(sub *Subscription) bool {
	subs, ok := p.topics[sub.Topic]
	if !ok {
		return false
	}
	if _, ok := subs[sub.ID]; !ok {
		return false
	}

	delete(subs, sub.ID)
	if len(subs) == 0 {
		delete(p.topics, sub.Topic)
	}
	close(sub.ch)
	return true
}

// Subscribers returns the number of open subscriptions on topic
func (p *Publisher) Subscribers(topic string) int {
	p.topicMu.Lock()
	defer p.topicMu.Unlock()

	return len(p.topics[topic])
}

// Publish broadcasts an event to topic subscribers and typed handlers.
//
// Topic delivery never blocks: the event is queued on each subscriber's
// buffer and a subscriber whose buffer is full is evicted. Callers publishing
// under a per-key lock therefore get commit-ordered delivery.
func (p *Publisher) Publish(event Event) {
	if event.Topic != "" {
		for _, sub := range p.enqueue(event) {
			p.dispatch(Event{
				Type:    EventSubscriberEvicted,
				Topic:   sub.Topic,
				GameID:  event.GameID,
				Payload: sub.ID,
			})
		}
	}

	p.dispatch(event)
}

func (p *Publisher) enqueue(event Event) []*Subscription {
	p.topicMu.Lock()
	defer p.topicMu.Unlock()

	var evicted []*Subscription
	for _, sub := range p.topics[event.Topic] {
		select {
		case sub.ch <- event:
		default:
			sub.evicted = true
			evicted = append(evicted, sub)
		}
	}

	for _, sub := range evicted {
		p.remove(sub)
	}

	return evicted
}

// dispatch calls typed and "all events" handlers concurrently
func (p *Publisher) dispatch(event Event) {
	p.mu.RLock()
	handlers := p.subscribers[event.Type]
	allHandlers := p.subscribers["*"]
	p.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}

	for _, handler := range allHandlers {
		go handler(event)
	}
}
