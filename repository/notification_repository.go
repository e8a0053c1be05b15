package repository

import (
	"context"
	"fmt"
	"time"

	"sidebet/database"
	"sidebet/models"
)

// NotificationRepository implements the in-app inbox
type NotificationRepository struct {
	q Queryable
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{q: db.Pool}
}

// newNotificationRepositoryWithTx creates a new notification repository with a transaction
func newNotificationRepositoryWithTx(tx Queryable) *NotificationRepository {
	return &NotificationRepository{q: tx}
}

// Create stores a notification in the user's inbox
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (
			user_id, type, title, message, priority, related_bet_id,
			related_dispute_id, related_squares_game_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		n.UserID,
		n.Type,
		n.Title,
		n.Message,
		n.Priority,
		n.RelatedBetID,
		n.RelatedDisputeID,
		n.RelatedSquaresGameID,
		timestampOrNow(n.CreatedAt),
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification for %d: %w", n.UserID, err)
	}
	return nil
}

// GetByUser returns a user's notifications, newest first
func (r *NotificationRepository) GetByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, user_id, type, title, message, priority, related_bet_id,
			related_dispute_id, related_squares_game_id, read_at, created_at
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR read_at IS NULL)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`

	rows, err := r.q.Query(ctx, query, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications for %d: %w", userID, err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		var n models.Notification
		err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.Type,
			&n.Title,
			&n.Message,
			&n.Priority,
			&n.RelatedBetID,
			&n.RelatedDisputeID,
			&n.RelatedSquaresGameID,
			&n.ReadAt,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead marks a user's notification read. Marking an already read
// notification keeps the first read time.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID int64, readAt time.Time) error {
	query := `
		UPDATE notifications
		SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2
	`

	result, err := r.q.Exec(ctx, query, id, userID, readAt)
	if err != nil {
		return fmt.Errorf("failed to mark notification %d read: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("notification %d for user %d: %w", id, userID, models.ErrNotFound)
	}
	return nil
}
