package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sidebet/models"
)

// NATSNotificationSender publishes notifications on sidebet.notifications.<type>
type NATSNotificationSender struct {
	publisher MessagePublisher
}

// NewNATSNotificationSender creates a new NATS notification sender
func NewNATSNotificationSender(publisher MessagePublisher) *NATSNotificationSender {
	return &NATSNotificationSender{publisher: publisher}
}

func (s *NATSNotificationSender) Name() string { return "nats" }

func (s *NATSNotificationSender) Send(ctx context.Context, notification *models.Notification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	return s.publisher.Publish(ctx, NotificationSubject(notification.Type), data)
}

// NotificationSubject is the subject a notification is published on
func NotificationSubject(notificationType models.NotificationType) string {
	return notificationSubjectPrefix + strings.ToLower(string(notificationType))
}
