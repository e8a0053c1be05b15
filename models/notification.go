package models

import "time"

// NotificationType classifies user-facing notifications
type NotificationType string

const (
	NotificationTypeBetJoined           NotificationType = "BET_JOINED"
	NotificationTypeBetCancelled        NotificationType = "BET_CANCELLED"
	NotificationTypeBetResolved         NotificationType = "BET_RESOLVED"
	NotificationTypeResultAccepted      NotificationType = "RESULT_ACCEPTED"
	NotificationTypeEarlyClosure        NotificationType = "EARLY_CLOSURE"
	NotificationTypeDisputeFiled        NotificationType = "DISPUTE_FILED"
	NotificationTypeDisputeResolved     NotificationType = "DISPUTE_RESOLVED"
	NotificationTypePayoutReceived      NotificationType = "PAYOUT_RECEIVED"
	NotificationTypeRefundIssued        NotificationType = "REFUND_ISSUED"
	NotificationTypeWithdrawalCompleted NotificationType = "WITHDRAWAL_COMPLETED"
	NotificationTypeWithdrawalFailed    NotificationType = "WITHDRAWAL_FAILED"
	NotificationTypeSquaresLocked       NotificationType = "SQUARES_LOCKED"
	NotificationTypeSquaresPayout       NotificationType = "SQUARES_PAYOUT"
	NotificationTypeSquaresCancelled    NotificationType = "SQUARES_CANCELLED"
)

// NotificationPriority controls delivery urgency
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "LOW"
	NotificationPriorityNormal NotificationPriority = "NORMAL"
	NotificationPriorityHigh   NotificationPriority = "HIGH"
)

// Notification is an in-app inbox entry
type Notification struct {
	ID                   int64                `db:"id" json:"id"`
	UserID               int64                `db:"user_id" json:"user_id"`
	Type                 NotificationType     `db:"type" json:"type"`
	Title                string               `db:"title" json:"title"`
	Message              string               `db:"message" json:"message"`
	Priority             NotificationPriority `db:"priority" json:"priority"`
	RelatedBetID         *int64               `db:"related_bet_id" json:"related_bet_id,omitempty"`
	RelatedDisputeID     *int64               `db:"related_dispute_id" json:"related_dispute_id,omitempty"`
	RelatedSquaresGameID *int64               `db:"related_squares_game_id" json:"related_squares_game_id,omitempty"`
	ReadAt               *time.Time           `db:"read_at" json:"read_at,omitempty"`
	CreatedAt            time.Time            `db:"created_at" json:"created_at"`
}

// IsRead checks if the user has seen the notification
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}
