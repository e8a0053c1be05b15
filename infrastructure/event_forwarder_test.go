package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"sidebet/events"
	"sidebet/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMessagePublisher struct {
	mock.Mock
}

func (m *MockMessagePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

type fakePublishRecorder struct {
	mu     sync.Mutex
	types  []string
	errors int
}

func (r *fakePublishRecorder) RecordEventPublished(eventType string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
	if err != nil {
		r.errors++
	}
}

func TestEventForwarder_Forward(t *testing.T) {
	publisher := new(MockMessagePublisher)
	var captured []byte
	publisher.On("Publish", mock.Anything, "sidebet.events.bet_state_changed", mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(2).([]byte) }).
		Return(nil)

	recorder := &fakePublishRecorder{}
	forwarder := NewEventForwarder(publisher, recorder)
	forwarder.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	forwarder.Forward(context.Background(), events.BetStateChangedEvent{
		BetID:     5,
		OldStatus: models.BetStatusActive,
		NewStatus: models.BetStatusPendingResolution,
	})

	require.NotNil(t, captured)
	var envelope EventEnvelope
	require.NoError(t, json.Unmarshal(captured, &envelope))
	assert.Equal(t, events.EventTypeBetStateChanged, envelope.Type)
	assert.Equal(t, 2026, envelope.OccurredAt.Year())
	assert.Contains(t, string(envelope.Payload), `"bet_id":5`)
	assert.Equal(t, []string{"bet_state_changed"}, recorder.types)
	assert.Zero(t, recorder.errors)
}

func TestEventForwarder_PublishFailureIsRecorded(t *testing.T) {
	publisher := new(MockMessagePublisher)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("no responders"))

	recorder := &fakePublishRecorder{}
	forwarder := NewEventForwarder(publisher, recorder)

	assert.NotPanics(t, func() {
		forwarder.Forward(context.Background(), events.BetCreatedEvent{BetID: 1, CreatorID: 2})
	})
	assert.Equal(t, 1, recorder.errors)
}

func TestEventForwarder_RegisterSkipsNotifications(t *testing.T) {
	bus := events.NewBus()
	publisher := new(MockMessagePublisher)
	published := make(chan string, 2)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { published <- args.String(1) }).
		Return(nil)

	NewEventForwarder(publisher, nil).Register(bus)
	bus.Emit(context.Background(), events.NotificationEvent{Notification: testNotification()})
	bus.Emit(context.Background(), events.DisputeFiledEvent{DisputeID: 3, BetID: 4})

	assert.Equal(t, "sidebet.events.dispute_filed", <-published)
	select {
	case subject := <-published:
		t.Fatalf("unexpected publish on %s", subject)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "sidebet.events.trust_score_changed", EventSubject(events.EventTypeTrustScoreChanged))
	assert.Equal(t, "sidebet.notifications.withdrawal_failed", NotificationSubject(models.NotificationTypeWithdrawalFailed))
}
