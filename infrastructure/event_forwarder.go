package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sidebet/events"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// MessagePublisher sends raw payloads to a subject
type MessagePublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// PublishRecorder counts outbound messages
type PublishRecorder interface {
	RecordEventPublished(eventType string, err error)
}

// EventEnvelope wraps a domain event for the wire
type EventEnvelope struct {
	ID         uuid.UUID        `json:"id"`
	Type       events.EventType `json:"type"`
	OccurredAt time.Time        `json:"occurred_at"`
	Payload    json.RawMessage  `json:"payload"`
}

// NewEventEnvelope encodes an event with a fresh id
func NewEventEnvelope(event events.Event, now time.Time) (*EventEnvelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", event.Type(), err)
	}
	return &EventEnvelope{
		ID:         uuid.New(),
		Type:       event.Type(),
		OccurredAt: now.UTC(),
		Payload:    payload,
	}, nil
}

// EventForwarder relays committed domain events to the message bus on
// sidebet.events.<type>. Notifications travel through the dispatcher instead.
type EventForwarder struct {
	publisher MessagePublisher
	recorder  PublishRecorder
	now       func() time.Time
}

// NewEventForwarder creates a forwarder. recorder may be nil.
func NewEventForwarder(publisher MessagePublisher, recorder PublishRecorder) *EventForwarder {
	return &EventForwarder{
		publisher: publisher,
		recorder:  recorder,
		now:       time.Now,
	}
}

// Register subscribes the forwarder to every domain event type
func (f *EventForwarder) Register(bus *events.Bus) {
	for _, eventType := range events.AllEventTypes {
		if eventType == events.EventTypeNotification {
			continue
		}
		bus.Subscribe(eventType, f.Forward)
	}
}

// Forward publishes one event. Failures are logged and never reach the caller.
func (f *EventForwarder) Forward(ctx context.Context, event events.Event) {
	envelope, err := NewEventEnvelope(event, f.now())
	if err == nil {
		var data []byte
		data, err = json.Marshal(envelope)
		if err == nil {
			err = f.publisher.Publish(ctx, EventSubject(event.Type()), data)
		}
	}

	if f.recorder != nil {
		f.recorder.RecordEventPublished(string(event.Type()), err)
	}
	if err != nil {
		log.WithFields(log.Fields{
			"eventType": event.Type(),
		}).WithError(err).Warn("Failed to forward event")
	}
}

// EventSubject is the subject a domain event is published on
func EventSubject(eventType events.EventType) string {
	return eventSubjectPrefix + string(eventType)
}
