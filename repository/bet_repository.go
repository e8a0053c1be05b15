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

// BetRepository implements bet and participant data access
type BetRepository struct {
	q Queryable
}

// NewBetRepository creates a new bet repository
func NewBetRepository(db *database.DB) *BetRepository {
	return &BetRepository{q: db.Pool}
}

// newBetRepositoryWithTx creates a new bet repository with a transaction
func newBetRepositoryWithTx(tx Queryable) *BetRepository {
	return &BetRepository{q: tx}
}

const betColumns = `
	id, creator_id, title, description, sides, visibility, status, bet_amount,
	total_pot, deadline, winning_side, dispute_window_ends_at, resolution_reason,
	resolved_at, had_dispute, overdue_penalized, published_at, needs_correction,
	version, created_at, updated_at`

func scanBet(row scanner) (*models.Bet, error) {
	var bet models.Bet
	err := row.Scan(
		&bet.ID,
		&bet.CreatorID,
		&bet.Title,
		&bet.Description,
		&bet.Sides,
		&bet.Visibility,
		&bet.Status,
		&bet.BetAmount,
		&bet.TotalPot,
		&bet.Deadline,
		&bet.WinningSide,
		&bet.DisputeWindowEndsAt,
		&bet.ResolutionReason,
		&bet.ResolvedAt,
		&bet.HadDispute,
		&bet.OverduePenalized,
		&bet.PublishedAt,
		&bet.NeedsCorrection,
		&bet.Version,
		&bet.CreatedAt,
		&bet.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &bet, nil
}

func (r *BetRepository) queryBets(ctx context.Context, query string, args ...any) ([]*models.Bet, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bets []*models.Bet
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		bets = append(bets, bet)
	}
	return bets, rows.Err()
}

// timestampOrNow lets callers with an injected clock choose the row timestamps
func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// Create inserts a new bet
func (r *BetRepository) Create(ctx context.Context, bet *models.Bet) error {
	query := `
		INSERT INTO bets (
			creator_id, title, description, sides, visibility, status, bet_amount,
			total_pot, deadline, published_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, version, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		bet.CreatorID,
		bet.Title,
		bet.Description,
		bet.Sides,
		bet.Visibility,
		bet.Status,
		bet.BetAmount,
		bet.TotalPot,
		bet.Deadline,
		bet.PublishedAt,
		timestampOrNow(bet.CreatedAt),
		timestampOrNow(bet.UpdatedAt),
	).Scan(&bet.ID, &bet.Version, &bet.CreatedAt, &bet.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create bet: %w", err)
	}
	return nil
}

// GetByID retrieves a bet by its ID
func (r *BetRepository) GetByID(ctx context.Context, id int64) (*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE id = $1`

	bet, err := scanBet(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bet %d: %w", id, err)
	}
	return bet, nil
}

// GetByIDForUpdate retrieves a bet and holds a row lock until the transaction ends
func (r *BetRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE id = $1 FOR UPDATE`

	bet, err := scanBet(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock bet %d: %w", id, err)
	}
	return bet, nil
}

// Update writes every mutable column if the stored version still matches
func (r *BetRepository) Update(ctx context.Context, bet *models.Bet) error {
	query := `
		UPDATE bets
		SET title = $3,
			description = $4,
			visibility = $5,
			status = $6,
			total_pot = $7,
			deadline = $8,
			winning_side = $9,
			dispute_window_ends_at = $10,
			resolution_reason = $11,
			resolved_at = $12,
			had_dispute = $13,
			overdue_penalized = $14,
			published_at = $15,
			needs_correction = $16,
			updated_at = $17,
			version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version
	`

	err := r.q.QueryRow(ctx, query,
		bet.ID,
		bet.Version,
		bet.Title,
		bet.Description,
		bet.Visibility,
		bet.Status,
		bet.TotalPot,
		bet.Deadline,
		bet.WinningSide,
		bet.DisputeWindowEndsAt,
		bet.ResolutionReason,
		bet.ResolvedAt,
		bet.HadDispute,
		bet.OverduePenalized,
		bet.PublishedAt,
		bet.NeedsCorrection,
		timestampOrNow(bet.UpdatedAt),
	).Scan(&bet.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("bet %d at version %d: %w", bet.ID, bet.Version, models.ErrConcurrentModification)
	}
	if err != nil {
		return fmt.Errorf("failed to update bet %d: %w", bet.ID, err)
	}
	return nil
}

// GetExpiredActive returns ACTIVE bets whose deadline has passed
func (r *BetRepository) GetExpiredActive(ctx context.Context, now time.Time) ([]*models.Bet, error) {
	query := `
		SELECT ` + betColumns + `
		FROM bets
		WHERE status = $1 AND deadline < $2
		ORDER BY deadline ASC
	`

	bets, err := r.queryBets(ctx, query, models.BetStatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired bets: %w", err)
	}
	return bets, nil
}

// GetByStatus returns every bet in a status, oldest first
func (r *BetRepository) GetByStatus(ctx context.Context, status models.BetStatus) ([]*models.Bet, error) {
	query := `
		SELECT ` + betColumns + `
		FROM bets
		WHERE status = $1
		ORDER BY id ASC
	`

	bets, err := r.queryBets(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to get bets by status %s: %w", status, err)
	}
	return bets, nil
}

// GetOverdueUnresolved returns bets awaiting their creator's result past a deadline
// cutoff that have not been penalized yet
func (r *BetRepository) GetOverdueUnresolved(ctx context.Context, deadlineBefore time.Time) ([]*models.Bet, error) {
	query := `
		SELECT ` + betColumns + `
		FROM bets
		WHERE status = $1
		  AND winning_side IS NULL
		  AND NOT overdue_penalized
		  AND deadline < $2
		ORDER BY deadline ASC
	`

	bets, err := r.queryBets(ctx, query, models.BetStatusPendingResolution, deadlineBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to get overdue bets: %w", err)
	}
	return bets, nil
}

// ListOpenPublic returns public bets still accepting participants, closing soonest first
func (r *BetRepository) ListOpenPublic(ctx context.Context, now time.Time, limit int) ([]*models.Bet, error) {
	query := `
		SELECT ` + betColumns + `
		FROM bets
		WHERE status = $1 AND visibility = $2 AND deadline > $3
		ORDER BY deadline ASC
		LIMIT $4
	`

	bets, err := r.queryBets(ctx, query, models.BetStatusActive, models.BetVisibilityPublic, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list open bets: %w", err)
	}
	return bets, nil
}

// ListByUser returns bets a user created or joined, newest first
func (r *BetRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Bet, error) {
	query := `
		SELECT ` + betColumns + `
		FROM bets
		WHERE creator_id = $1
		   OR id IN (SELECT bet_id FROM participants WHERE user_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	bets, err := r.queryBets(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bets for user %d: %w", userID, err)
	}
	return bets, nil
}

// CountCleanResolvedByCreator counts RESOLVED bets of a creator that never saw a dispute
func (r *BetRepository) CountCleanResolvedByCreator(ctx context.Context, creatorID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM bets
		WHERE creator_id = $1 AND status = $2 AND NOT had_dispute
	`

	var count int
	if err := r.q.QueryRow(ctx, query, creatorID, models.BetStatusResolved).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count clean resolutions for %d: %w", creatorID, err)
	}
	return count, nil
}

// CountCancelledByCreatorSince counts published bets the creator cancelled since a time.
// Discarded drafts and bets cancelled by the expiry sweep are excluded.
func (r *BetRepository) CountCancelledByCreatorSince(ctx context.Context, creatorID int64, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM bets
		WHERE creator_id = $1
		  AND status = $2
		  AND updated_at >= $3
		  AND published_at IS NOT NULL
		  AND resolution_reason IS DISTINCT FROM $4
	`

	var count int
	err := r.q.QueryRow(ctx, query, creatorID, models.BetStatusCancelled, since, models.NoParticipantsReason).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cancellations for %d: %w", creatorID, err)
	}
	return count, nil
}

const participantColumns = `
	id, bet_id, user_id, side, amount, payout, has_accepted_result,
	accepted_result_at, created_at, updated_at`

func scanParticipant(row scanner) (*models.Participant, error) {
	var p models.Participant
	err := row.Scan(
		&p.ID,
		&p.BetID,
		&p.UserID,
		&p.Side,
		&p.Amount,
		&p.Payout,
		&p.HasAcceptedResult,
		&p.AcceptedResultAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateParticipant records a user's stake on a side
func (r *BetRepository) CreateParticipant(ctx context.Context, participant *models.Participant) error {
	query := `
		INSERT INTO participants (bet_id, user_id, side, amount, payout, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		participant.BetID,
		participant.UserID,
		participant.Side,
		participant.Amount,
		participant.Payout,
		timestampOrNow(participant.CreatedAt),
		timestampOrNow(participant.UpdatedAt),
	).Scan(&participant.ID, &participant.CreatedAt, &participant.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create participant: %w", err)
	}
	return nil
}

// GetParticipants returns a bet's participants in join order
func (r *BetRepository) GetParticipants(ctx context.Context, betID int64) ([]*models.Participant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM participants
		WHERE bet_id = $1
		ORDER BY id ASC
	`

	rows, err := r.q.Query(ctx, query, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants for bet %d: %w", betID, err)
	}
	defer rows.Close()

	var participants []*models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return participants, nil
}

// GetParticipant returns one user's entry on a bet
func (r *BetRepository) GetParticipant(ctx context.Context, betID, userID int64) (*models.Participant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM participants
		WHERE bet_id = $1 AND user_id = $2
	`

	p, err := scanParticipant(r.q.QueryRow(ctx, query, betID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant %d on bet %d: %w", userID, betID, err)
	}
	return p, nil
}

// UpdateParticipant writes a participant's payout and acceptance
func (r *BetRepository) UpdateParticipant(ctx context.Context, participant *models.Participant) error {
	query := `
		UPDATE participants
		SET payout = $2,
			has_accepted_result = $3,
			accepted_result_at = $4,
			updated_at = $5
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query,
		participant.ID,
		participant.Payout,
		participant.HasAcceptedResult,
		participant.AcceptedResultAt,
		timestampOrNow(participant.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update participant %d: %w", participant.ID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("participant %d: %w", participant.ID, models.ErrNotFound)
	}
	return nil
}

// CountParticipants counts a bet's participants, the creator included
func (r *BetRepository) CountParticipants(ctx context.Context, betID int64) (int, error) {
	var count int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM participants WHERE bet_id = $1`, betID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count participants for bet %d: %w", betID, err)
	}
	return count, nil
}
