package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sidebet/database"
	"sidebet/models"

	"github.com/jackc/pgx/v5"
)

// TransactionRepository implements ledger data access
type TransactionRepository struct {
	q Queryable
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{q: db.Pool}
}

// newTransactionRepositoryWithTx creates a new transaction repository with a transaction
func newTransactionRepositoryWithTx(tx Queryable) *TransactionRepository {
	return &TransactionRepository{q: tx}
}

const transactionColumns = `
	id, user_id, type, status, amount, platform_fee, net_amount, balance_before,
	balance_after, related_bet_id, related_squares_game_id, reference, description,
	available_at, failure_reason, created_at, updated_at, completed_at`

func scanTransaction(row scanner) (*models.Transaction, error) {
	var tx models.Transaction
	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Type,
		&tx.Status,
		&tx.Amount,
		&tx.PlatformFee,
		&tx.NetAmount,
		&tx.BalanceBefore,
		&tx.BalanceAfter,
		&tx.RelatedBetID,
		&tx.RelatedSquaresGameID,
		&tx.Reference,
		&tx.Description,
		&tx.AvailableAt,
		&tx.FailureReason,
		&tx.CreatedAt,
		&tx.UpdatedAt,
		&tx.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*models.Transaction, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// Create inserts a ledger entry, including its settlement snapshot when it is
// already COMPLETED
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			user_id, type, status, amount, platform_fee, net_amount, balance_before,
			balance_after, related_bet_id, related_squares_game_id, reference,
			description, available_at, created_at, updated_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		tx.UserID,
		tx.Type,
		tx.Status,
		tx.Amount,
		tx.PlatformFee,
		tx.NetAmount,
		tx.BalanceBefore,
		tx.BalanceAfter,
		tx.RelatedBetID,
		tx.RelatedSquaresGameID,
		tx.Reference,
		tx.Description,
		tx.AvailableAt,
		timestampOrNow(tx.CreatedAt),
		timestampOrNow(tx.UpdatedAt),
		tx.CompletedAt,
	).Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create %s transaction: %w", tx.Type, err)
	}
	return nil
}

// GetByID retrieves a transaction by its ID
func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %d: %w", id, err)
	}
	return tx, nil
}

// GetByUser returns a user's ledger, newest first
func (r *TransactionRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	txs, err := r.queryTransactions(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions for user %d: %w", userID, err)
	}
	return txs, nil
}

// GetPendingByBet returns a bet's unsettled payout and refund entries
func (r *TransactionRepository) GetPendingByBet(ctx context.Context, betID int64) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE related_bet_id = $1 AND status = $2
		ORDER BY id ASC
	`

	txs, err := r.queryTransactions(ctx, query, betID, models.TransactionStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending transactions for bet %d: %w", betID, err)
	}
	return txs, nil
}

// GetDueWithdrawals returns PENDING withdrawals whose release time has passed
func (r *TransactionRepository) GetDueWithdrawals(ctx context.Context, now time.Time) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE type = $1
		  AND status = $2
		  AND (available_at IS NULL OR available_at <= $3)
		ORDER BY available_at ASC NULLS FIRST, id ASC
	`

	txs, err := r.queryTransactions(ctx, query, models.TransactionTypeWithdrawal, models.TransactionStatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get due withdrawals: %w", err)
	}
	return txs, nil
}

// TransitionStatus moves a transaction between statuses only from the expected one
func (r *TransactionRepository) TransitionStatus(ctx context.Context, id int64, from, to models.TransactionStatus) error {
	query := `
		UPDATE transactions
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := r.q.Exec(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to move transaction %d to %s: %w", id, to, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("transaction %d is no longer %s: %w", id, from, models.ErrConcurrentModification)
	}
	return nil
}

// MarkCompleted writes the settlement snapshot of a PROCESSING transaction
func (r *TransactionRepository) MarkCompleted(ctx context.Context, tx *models.Transaction) error {
	query := `
		UPDATE transactions
		SET status = $2,
			platform_fee = $3,
			net_amount = $4,
			balance_before = $5,
			balance_after = $6,
			completed_at = $7,
			updated_at = $8
		WHERE id = $1 AND status = $9
	`

	result, err := r.q.Exec(ctx, query,
		tx.ID,
		models.TransactionStatusCompleted,
		tx.PlatformFee,
		tx.NetAmount,
		tx.BalanceBefore,
		tx.BalanceAfter,
		tx.CompletedAt,
		timestampOrNow(tx.UpdatedAt),
		models.TransactionStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to complete transaction %d: %w", tx.ID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("transaction %d is not processing: %w", tx.ID, models.ErrConcurrentModification)
	}
	return nil
}

// MarkFailed fails a transaction still in the expected status
func (r *TransactionRepository) MarkFailed(ctx context.Context, id int64, from models.TransactionStatus, reason string) error {
	query := `
		UPDATE transactions
		SET status = $3, failure_reason = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := r.q.Exec(ctx, query, id, from, models.TransactionStatusFailed, reason)
	if err != nil {
		return fmt.Errorf("failed to fail transaction %d: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("transaction %d is no longer %s: %w", id, from, models.ErrConcurrentModification)
	}
	return nil
}

// CancelPendingByBet cancels every PENDING entry of a type for a bet and returns
// how many were cancelled
func (r *TransactionRepository) CancelPendingByBet(ctx context.Context, betID int64, txType models.TransactionType) (int64, error) {
	query := `
		UPDATE transactions
		SET status = $4, updated_at = NOW()
		WHERE related_bet_id = $1 AND type = $2 AND status = $3
	`

	result, err := r.q.Exec(ctx, query, betID, txType, models.TransactionStatusPending, models.TransactionStatusCancelled)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pending %s for bet %d: %w", txType, betID, err)
	}
	return result.RowsAffected(), nil
}
