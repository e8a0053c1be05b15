package infrastructure

import (
	"context"

	"sidebet/events"
	"sidebet/models"

	log "github.com/sirupsen/logrus"
)

// NotificationSender delivers a notification over one channel
type NotificationSender interface {
	Name() string
	Send(ctx context.Context, notification *models.Notification) error
}

// DeliveryRecorder counts notification deliveries per sender
type DeliveryRecorder interface {
	RecordNotificationDelivery(sender string, notificationType models.NotificationType, err error)
}

// NotificationDispatcher fans committed notifications out to its senders in
// order. The inbox sender goes first so later senders see the stored id.
type NotificationDispatcher struct {
	senders  []NotificationSender
	recorder DeliveryRecorder
}

// NewNotificationDispatcher creates a dispatcher. recorder may be nil.
func NewNotificationDispatcher(recorder DeliveryRecorder, senders ...NotificationSender) *NotificationDispatcher {
	return &NotificationDispatcher{
		senders:  senders,
		recorder: recorder,
	}
}

// Register subscribes the dispatcher to notification events
func (d *NotificationDispatcher) Register(bus *events.Bus) {
	bus.Subscribe(events.EventTypeNotification, d.handle)
}

func (d *NotificationDispatcher) handle(ctx context.Context, event events.Event) {
	ne, ok := event.(events.NotificationEvent)
	if !ok {
		log.WithField("eventType", event.Type()).Warn("Dispatcher received a non-notification event")
		return
	}
	d.Dispatch(ctx, ne.Notification)
}

// Dispatch delivers through every sender. A failing sender is logged and does
// not stop the others.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, notification models.Notification) {
	n := &notification
	for _, sender := range d.senders {
		err := sender.Send(ctx, n)
		if d.recorder != nil {
			d.recorder.RecordNotificationDelivery(sender.Name(), n.Type, err)
		}
		if err != nil {
			log.WithFields(log.Fields{
				"sender":           sender.Name(),
				"userID":           n.UserID,
				"notificationType": n.Type,
			}).WithError(err).Error("Failed to deliver notification")
		}
	}
}
