package manager

import (
	"time"

	"github.com/tecu23/chess-sessions/pkg/events"
	"github.com/tecu23/chess-sessions/pkg/game"
	"github.com/tecu23/chess-sessions/pkg/invitation"
	"github.com/tecu23/chess-sessions/pkg/messages"
)

func gameEvent(t events.EventType, s *game.Session, name string, payload interface{}) events.Event {
	return events.Event{
		Type:    t,
		Topic:   events.GameTopic(s.ID),
		GameID:  s.ID,
		Version: s.Version,
		Payload: messages.OutboundMessage{Event: name, Payload: payload},
	}
}

// snapshotEvents is the full state of s followed by its clock, and the end
// notice once terminal
func snapshotEvents(s *game.Session, now time.Time) []events.Event {
	evs := []events.Event{
		gameEvent(events.EventStateChanged, s, messages.EventGameState, messages.GameState(s, now)),
		gameEvent(events.EventStateChanged, s, messages.EventClockState, messages.ClockState(s, now)),
	}

	if s.Status.Terminal() {
		evs = append(evs, gameEvent(events.EventGameEnded, s, messages.EventGameOver, messages.GameOver(s)))
	}

	return evs
}

func trainingEvent(t events.EventType, tr *game.Training, name string, payload interface{}) events.Event {
	return events.Event{
		Type:    t,
		Topic:   events.TrainingTopic(tr.ID),
		GameID:  tr.ID,
		Version: tr.Version,
		Payload: messages.OutboundMessage{Event: name, Payload: payload},
	}
}

func trainingSnapshot(tr *game.Training) events.Event {
	return trainingEvent(events.EventTrainingUpdated, tr, messages.EventTrainingState, messages.TrainingState(tr))
}

// invitationEvents addresses the same notice to each listed player
func invitationEvents(t events.EventType, name string, payload interface{}, players ...string) []events.Event {
	evs := make([]events.Event, 0, len(players))
	for _, p := range players {
		evs = append(evs, events.Event{
			Type:    t,
			Topic:   events.PlayerTopic(p),
			Payload: messages.OutboundMessage{Event: name, Payload: payload},
		})
	}

	return evs
}

func invitationNotice(t events.EventType, name string, inv *invitation.Invitation, now time.Time) []events.Event {
	return invitationEvents(t, name, messages.Invitation(inv, now), inv.SenderID, inv.RecipientID)
}
