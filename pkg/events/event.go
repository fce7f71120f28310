// Package events carries change notifications from the services to the
// realtime fan-out and, optionally, to other instances over redis streams.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	RideCreated           Type = "ride.created"
	RideUpdated           Type = "ride.updated"
	RideCancelled         Type = "ride.cancelled"
	RideCompleted         Type = "ride.completed"
	ParticipationCreated  Type = "participation.created"
	ParticipationPaid     Type = "participation.paid"
	ParticipationReleased Type = "participation.released"
	ChatMessagePosted     Type = "chat.message_posted"
)

type Event struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	RideID     string          `json:"ride_id,omitempty"`
	UserID     string          `json:"user_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// New builds an event with a fresh id. data is JSON-encoded; an encoding
// failure leaves Data empty.
func New(eventType Type, rideID, userID string, data interface{}) *Event {
	event := &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		RideID:     rideID,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			event.Data = raw
		}
	}
	return event
}

type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// Handler consumes one event. Returning an error nacks the message.
type Handler func(ctx context.Context, event *Event) error

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event *Event) error {
	return nil
}
