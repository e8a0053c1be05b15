package infrastructure

import (
	"context"
	"fmt"

	"sidebet/models"
	"sidebet/service"
)

// InboxNotificationSender stores notifications in the user's in-app inbox
type InboxNotificationSender struct {
	uowFactory service.UnitOfWorkFactory
}

// NewInboxNotificationSender creates a new inbox sender
func NewInboxNotificationSender(uowFactory service.UnitOfWorkFactory) *InboxNotificationSender {
	return &InboxNotificationSender{uowFactory: uowFactory}
}

func (s *InboxNotificationSender) Name() string { return "inbox" }

// Send persists the notification and sets its id
func (s *InboxNotificationSender) Send(ctx context.Context, notification *models.Notification) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.NotificationRepository().Create(ctx, notification); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
