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

// DisputeRepository implements dispute data access
type DisputeRepository struct {
	q Queryable
}

// NewDisputeRepository creates a new dispute repository
func NewDisputeRepository(db *database.DB) *DisputeRepository {
	return &DisputeRepository{q: db.Pool}
}

// newDisputeRepositoryWithTx creates a new dispute repository with a transaction
func newDisputeRepositoryWithTx(tx Queryable) *DisputeRepository {
	return &DisputeRepository{q: tx}
}

const disputeColumns = `
	id, bet_id, filed_by, against_user_id, reason, details, status,
	bet_status_at_filing, resolution, admin_notes, resolved_by, resolved_at,
	created_at, updated_at`

func scanDispute(row scanner) (*models.Dispute, error) {
	var d models.Dispute
	err := row.Scan(
		&d.ID,
		&d.BetID,
		&d.FiledBy,
		&d.AgainstUserID,
		&d.Reason,
		&d.Details,
		&d.Status,
		&d.BetStatusAtFiling,
		&d.Resolution,
		&d.AdminNotes,
		&d.ResolvedBy,
		&d.ResolvedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DisputeRepository) queryDisputes(ctx context.Context, query string, args ...any) ([]*models.Dispute, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var disputes []*models.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		disputes = append(disputes, d)
	}
	return disputes, rows.Err()
}

// Create inserts a new dispute
func (r *DisputeRepository) Create(ctx context.Context, dispute *models.Dispute) error {
	query := `
		INSERT INTO disputes (
			bet_id, filed_by, against_user_id, reason, details, status,
			bet_status_at_filing, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		dispute.BetID,
		dispute.FiledBy,
		dispute.AgainstUserID,
		dispute.Reason,
		dispute.Details,
		dispute.Status,
		dispute.BetStatusAtFiling,
		timestampOrNow(dispute.CreatedAt),
		timestampOrNow(dispute.UpdatedAt),
	).Scan(&dispute.ID, &dispute.CreatedAt, &dispute.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create dispute: %w", err)
	}
	return nil
}

// GetByID retrieves a dispute by its ID
func (r *DisputeRepository) GetByID(ctx context.Context, id int64) (*models.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1`

	d, err := scanDispute(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dispute %d: %w", id, err)
	}
	return d, nil
}

// GetByIDForUpdate retrieves a dispute and holds a row lock until the transaction ends
func (r *DisputeRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1 FOR UPDATE`

	d, err := scanDispute(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock dispute %d: %w", id, err)
	}
	return d, nil
}

// Update writes a dispute's status and resolution
func (r *DisputeRepository) Update(ctx context.Context, dispute *models.Dispute) error {
	query := `
		UPDATE disputes
		SET status = $2,
			resolution = $3,
			admin_notes = $4,
			resolved_by = $5,
			resolved_at = $6,
			updated_at = $7
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query,
		dispute.ID,
		dispute.Status,
		dispute.Resolution,
		dispute.AdminNotes,
		dispute.ResolvedBy,
		dispute.ResolvedAt,
		timestampOrNow(dispute.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update dispute %d: %w", dispute.ID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("dispute %d: %w", dispute.ID, models.ErrNotFound)
	}
	return nil
}

// GetOpenByBet returns PENDING and UNDER_REVIEW disputes for a bet
func (r *DisputeRepository) GetOpenByBet(ctx context.Context, betID int64) ([]*models.Dispute, error) {
	query := `
		SELECT ` + disputeColumns + `
		FROM disputes
		WHERE bet_id = $1 AND status IN ($2, $3)
		ORDER BY id ASC
	`

	disputes, err := r.queryDisputes(ctx, query, betID, models.DisputeStatusPending, models.DisputeStatusUnderReview)
	if err != nil {
		return nil, fmt.Errorf("failed to get open disputes for bet %d: %w", betID, err)
	}
	return disputes, nil
}

// GetByStatus returns disputes in a status, oldest first
func (r *DisputeRepository) GetByStatus(ctx context.Context, status models.DisputeStatus, limit int) ([]*models.Dispute, error) {
	query := `
		SELECT ` + disputeColumns + `
		FROM disputes
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`

	disputes, err := r.queryDisputes(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s disputes: %w", status, err)
	}
	return disputes, nil
}

// GetByFiler returns disputes a user filed, newest first
func (r *DisputeRepository) GetByFiler(ctx context.Context, userID int64, limit int) ([]*models.Dispute, error) {
	query := `
		SELECT ` + disputeColumns + `
		FROM disputes
		WHERE filed_by = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	disputes, err := r.queryDisputes(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get disputes filed by %d: %w", userID, err)
	}
	return disputes, nil
}

// CountPendingByUser counts PENDING disputes filed by a user
func (r *DisputeRepository) CountPendingByUser(ctx context.Context, userID int64) (int, error) {
	query := `SELECT COUNT(*) FROM disputes WHERE filed_by = $1 AND status = $2`

	var count int
	if err := r.q.QueryRow(ctx, query, userID, models.DisputeStatusPending).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending disputes for %d: %w", userID, err)
	}
	return count, nil
}

// GetLatestFiledAt returns when the user last filed a dispute, or nil
func (r *DisputeRepository) GetLatestFiledAt(ctx context.Context, userID int64) (*time.Time, error) {
	var latest *time.Time
	err := r.q.QueryRow(ctx, `SELECT MAX(created_at) FROM disputes WHERE filed_by = $1`, userID).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest dispute for %d: %w", userID, err)
	}
	return latest, nil
}
