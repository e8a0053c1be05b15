package service

import (
	"context"
	"errors"
	"fmt"

	"sidebet/models"
)

// notificationService implements NotificationService
type notificationService struct {
	uowFactory UnitOfWorkFactory
	clock      Clock
}

// NewNotificationService creates a new notification service
func NewNotificationService(uowFactory UnitOfWorkFactory, clock Clock) NotificationService {
	return &notificationService{
		uowFactory: uowFactory,
		clock:      clock,
	}
}

func (s *notificationService) ListNotifications(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*models.Notification, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	notifications, err := uow.NotificationRepository().GetByUser(ctx, userID, unreadOnly, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead marks one of the user's notifications as read
func (s *notificationService) MarkRead(ctx context.Context, userID, notificationID int64) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	err := uow.NotificationRepository().MarkRead(ctx, notificationID, userID, s.clock.Now())
	if errors.Is(err, models.ErrNotFound) {
		return newRuleViolation(CodeNotFound, "notification %d not found", notificationID)
	}
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
