package repository

import (
	"context"
	"fmt"

	"sidebet/database"
	"sidebet/models"
)

// TrustScoreHistoryRepository implements the trust score audit trail
type TrustScoreHistoryRepository struct {
	q Queryable
}

// NewTrustScoreHistoryRepository creates a new trust score history repository
func NewTrustScoreHistoryRepository(db *database.DB) *TrustScoreHistoryRepository {
	return &TrustScoreHistoryRepository{q: db.Pool}
}

// newTrustScoreHistoryRepositoryWithTx creates a new trust score history repository with a transaction
func newTrustScoreHistoryRepositoryWithTx(tx Queryable) *TrustScoreHistoryRepository {
	return &TrustScoreHistoryRepository{q: tx}
}

// Record appends a trust score change
func (r *TrustScoreHistoryRepository) Record(ctx context.Context, history *models.TrustScoreHistory) error {
	query := `
		INSERT INTO trust_score_history (
			user_id, delta, previous_score, new_score, reason,
			related_bet_id, related_transaction_id, related_dispute_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		history.UserID,
		history.Delta,
		history.PreviousScore,
		history.NewScore,
		history.Reason,
		history.RelatedBetID,
		history.RelatedTransactionID,
		history.RelatedDisputeID,
		timestampOrNow(history.CreatedAt),
	).Scan(&history.ID, &history.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record trust score change for %d: %w", history.UserID, err)
	}
	return nil
}

// GetByUser returns a user's trust score changes, newest first
func (r *TrustScoreHistoryRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.TrustScoreHistory, error) {
	query := `
		SELECT id, user_id, delta, previous_score, new_score, reason,
			related_bet_id, related_transaction_id, related_dispute_id, created_at
		FROM trust_score_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get trust history for %d: %w", userID, err)
	}
	defer rows.Close()

	var history []*models.TrustScoreHistory
	for rows.Next() {
		var h models.TrustScoreHistory
		err := rows.Scan(
			&h.ID,
			&h.UserID,
			&h.Delta,
			&h.PreviousScore,
			&h.NewScore,
			&h.Reason,
			&h.RelatedBetID,
			&h.RelatedTransactionID,
			&h.RelatedDisputeID,
			&h.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trust history: %w", err)
		}
		history = append(history, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trust history: %w", err)
	}
	return history, nil
}

// HasReason reports whether the user ever received a change for reason
func (r *TrustScoreHistoryRepository) HasReason(ctx context.Context, userID int64, reason models.TrustReason) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM trust_score_history WHERE user_id = $1 AND reason = $2)`

	var exists bool
	if err := r.q.QueryRow(ctx, query, userID, reason).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check trust history for %d: %w", userID, err)
	}
	return exists, nil
}
