package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"sidebet/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEventDeliveryIntegration tests the complete event flow from TransactionalBus to main Bus
func TestEventDeliveryIntegration(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)

	eventReceived := make(chan BetStateChangedEvent, 1)
	mainBus.Subscribe(EventTypeBetStateChanged, func(ctx context.Context, event Event) {
		if stateEvent, ok := event.(BetStateChangedEvent); ok {
			eventReceived <- stateEvent
		} else {
			t.Errorf("Expected BetStateChangedEvent, got %T", event)
		}
	})

	testEvent := BetStateChangedEvent{
		BetID:     42,
		CreatorID: 7,
		OldStatus: models.BetStatusActive,
		NewStatus: models.BetStatusPendingResolution,
	}

	// Publish event to transactional bus (simulating service layer)
	transactionalBus.Publish(testEvent)

	// Flush events (simulating successful transaction commit)
	require.NoError(t, transactionalBus.Flush(context.Background()))

	select {
	case received := <-eventReceived:
		assert.Equal(t, testEvent, received)
	case <-time.After(2 * time.Second):
		t.Fatal("Event was not received within timeout")
	}
}

// TestMultipleEventsDelivery tests delivering multiple events in sequence
func TestMultipleEventsDelivery(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)

	var mu sync.Mutex
	var received []int64
	var wg sync.WaitGroup
	wg.Add(3)

	mainBus.Subscribe(EventTypeNotification, func(ctx context.Context, event Event) {
		defer wg.Done()
		n := event.(NotificationEvent)
		mu.Lock()
		received = append(received, n.Notification.UserID)
		mu.Unlock()
	})

	for _, userID := range []int64{1, 2, 3} {
		transactionalBus.Publish(NotificationEvent{Notification: models.Notification{UserID: userID}})
	}
	assert.Len(t, transactionalBus.Pending(), 3)

	require.NoError(t, transactionalBus.Flush(context.Background()))
	assert.Empty(t, transactionalBus.Pending())

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Events were not received within timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []int64{1, 2, 3}, received)
}

// TestDiscardDropsPendingEvents tests that rolled back work never reaches subscribers
func TestDiscardDropsPendingEvents(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)

	called := make(chan struct{}, 1)
	mainBus.Subscribe(EventTypeDisputeFiled, func(ctx context.Context, event Event) {
		called <- struct{}{}
	})

	transactionalBus.Publish(DisputeFiledEvent{DisputeID: 1, BetID: 2})
	transactionalBus.Discard()
	require.NoError(t, transactionalBus.Flush(context.Background()))

	select {
	case <-called:
		t.Fatal("Discarded event was delivered")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubscribeAllReceivesEveryType(t *testing.T) {
	mainBus := NewBus()
	got := make(chan EventType, len(AllEventTypes))
	mainBus.SubscribeAll(func(ctx context.Context, event Event) {
		got <- event.Type()
	})

	mainBus.Emit(context.Background(), TrustScoreChangedEvent{UserID: 1, Delta: 0.2})
	mainBus.Emit(context.Background(), SquaresGameStateChangedEvent{GameID: 1})

	var types []EventType
	for i := 0; i < 2; i++ {
		select {
		case et := <-got:
			types = append(types, et)
		case <-time.After(2 * time.Second):
			t.Fatal("Event was not received within timeout")
		}
	}
	assert.ElementsMatch(t, []EventType{EventTypeTrustScoreChanged, EventTypeSquaresGameStateChanged}, types)
}

func TestHandlerPanicDoesNotAffectOtherHandlers(t *testing.T) {
	mainBus := NewBus()
	ok := make(chan struct{}, 1)

	mainBus.Subscribe(EventTypeBetCreated, func(ctx context.Context, event Event) {
		panic("boom")
	})
	mainBus.Subscribe(EventTypeBetCreated, func(ctx context.Context, event Event) {
		ok <- struct{}{}
	})

	mainBus.Emit(context.Background(), BetCreatedEvent{BetID: 1})

	select {
	case <-ok:
	case <-time.After(2 * time.Second):
		t.Fatal("Healthy handler was not called")
	}
}
