package repository

import (
	"context"
	"errors"
	"fmt"

	"sidebet/database"
	"sidebet/models"

	"github.com/jackc/pgx/v5"
)

// SquaresRepository implements squares board, sale and payout data access
type SquaresRepository struct {
	q Queryable
}

// NewSquaresRepository creates a new squares repository
func NewSquaresRepository(db *database.DB) *SquaresRepository {
	return &SquaresRepository{q: db.Pool}
}

// newSquaresRepositoryWithTx creates a new squares repository with a transaction
func newSquaresRepositoryWithTx(tx Queryable) *SquaresRepository {
	return &SquaresRepository{q: tx}
}

const squaresGameColumns = `
	id, creator_id, title, home_team, away_team, price_per_square, status,
	row_numbers, col_numbers, payout_percents, max_squares_per_user,
	total_pot, locked_at, version, created_at, updated_at`

func scanSquaresGame(row scanner) (*models.SquaresGame, error) {
	var g models.SquaresGame
	err := row.Scan(
		&g.ID,
		&g.CreatorID,
		&g.Title,
		&g.HomeTeam,
		&g.AwayTeam,
		&g.PricePerSquare,
		&g.Status,
		&g.RowNumbers,
		&g.ColNumbers,
		&g.PayoutPercents,
		&g.MaxSquaresPerUser,
		&g.TotalPot,
		&g.LockedAt,
		&g.Version,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// CreateGame inserts a new board
func (r *SquaresRepository) CreateGame(ctx context.Context, game *models.SquaresGame) error {
	query := `
		INSERT INTO squares_games (
			creator_id, title, home_team, away_team, price_per_square, status,
			row_numbers, col_numbers, payout_percents, max_squares_per_user,
			total_pot, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, version, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		game.CreatorID,
		game.Title,
		game.HomeTeam,
		game.AwayTeam,
		game.PricePerSquare,
		game.Status,
		game.RowNumbers,
		game.ColNumbers,
		game.PayoutPercents,
		game.MaxSquaresPerUser,
		game.TotalPot,
		timestampOrNow(game.CreatedAt),
		timestampOrNow(game.UpdatedAt),
	).Scan(&game.ID, &game.Version, &game.CreatedAt, &game.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create squares game: %w", err)
	}
	return nil
}

// GetGame retrieves a board by ID
func (r *SquaresRepository) GetGame(ctx context.Context, id int64) (*models.SquaresGame, error) {
	query := `SELECT ` + squaresGameColumns + ` FROM squares_games WHERE id = $1`

	game, err := scanSquaresGame(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get squares game %d: %w", id, err)
	}
	return game, nil
}

// GetGameForUpdate retrieves a board and locks it until the transaction ends
func (r *SquaresRepository) GetGameForUpdate(ctx context.Context, id int64) (*models.SquaresGame, error) {
	query := `SELECT ` + squaresGameColumns + ` FROM squares_games WHERE id = $1 FOR UPDATE`

	game, err := scanSquaresGame(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock squares game %d: %w", id, err)
	}
	return game, nil
}

// UpdateGame writes the board if its version still matches and bumps the version
func (r *SquaresRepository) UpdateGame(ctx context.Context, game *models.SquaresGame) error {
	query := `
		UPDATE squares_games
		SET status = $3,
			row_numbers = $4,
			col_numbers = $5,
			total_pot = $6,
			locked_at = $7,
			updated_at = $8,
			version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version
	`

	err := r.q.QueryRow(ctx, query,
		game.ID,
		game.Version,
		game.Status,
		game.RowNumbers,
		game.ColNumbers,
		game.TotalPot,
		game.LockedAt,
		timestampOrNow(game.UpdatedAt),
	).Scan(&game.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("squares game %d at version %d: %w", game.ID, game.Version, models.ErrConcurrentModification)
	}
	if err != nil {
		return fmt.Errorf("failed to update squares game %d: %w", game.ID, err)
	}
	return nil
}

// CreatePurchase records a sold cell. A cell that is already sold reports
// models.ErrConcurrentModification.
func (r *SquaresRepository) CreatePurchase(ctx context.Context, purchase *models.SquaresPurchase) error {
	query := `
		INSERT INTO squares_purchases (game_id, user_id, row_index, col_index, amount, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (game_id, row_index, col_index) DO NOTHING
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		purchase.GameID,
		purchase.UserID,
		purchase.Row,
		purchase.Col,
		purchase.Amount,
		purchase.TransactionID,
		timestampOrNow(purchase.CreatedAt),
	).Scan(&purchase.ID, &purchase.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("cell (%d,%d) of game %d: %w", purchase.Row, purchase.Col, purchase.GameID, models.ErrConcurrentModification)
	}
	if err != nil {
		return fmt.Errorf("failed to create squares purchase: %w", err)
	}
	return nil
}

// GetPurchases returns every sold cell of a board
func (r *SquaresRepository) GetPurchases(ctx context.Context, gameID int64) ([]*models.SquaresPurchase, error) {
	query := `
		SELECT id, game_id, user_id, row_index, col_index, amount, transaction_id, created_at
		FROM squares_purchases
		WHERE game_id = $1
		ORDER BY row_index, col_index
	`

	rows, err := r.q.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get purchases for game %d: %w", gameID, err)
	}
	defer rows.Close()

	var purchases []*models.SquaresPurchase
	for rows.Next() {
		var p models.SquaresPurchase
		if err := rows.Scan(&p.ID, &p.GameID, &p.UserID, &p.Row, &p.Col, &p.Amount, &p.TransactionID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan squares purchase: %w", err)
		}
		purchases = append(purchases, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate squares purchases: %w", err)
	}
	return purchases, nil
}

// CountUserPurchases counts the cells a user holds on a board
func (r *SquaresRepository) CountUserPurchases(ctx context.Context, gameID, userID int64) (int, error) {
	var count int
	err := r.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM squares_purchases WHERE game_id = $1 AND user_id = $2`,
		gameID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count purchases for user %d in game %d: %w", userID, gameID, err)
	}
	return count, nil
}

// CreatePayout records a period result. Each period pays at most once per board.
func (r *SquaresRepository) CreatePayout(ctx context.Context, payout *models.SquaresPayout) error {
	query := `
		INSERT INTO squares_payouts (
			game_id, period, home_score, away_score, winner_user_id,
			purchase_id, amount, transaction_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (game_id, period) DO NOTHING
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		payout.GameID,
		payout.Period,
		payout.HomeScore,
		payout.AwayScore,
		payout.WinnerUserID,
		payout.PurchaseID,
		payout.Amount,
		payout.TransactionID,
		timestampOrNow(payout.CreatedAt),
	).Scan(&payout.ID, &payout.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("period %s of game %d: %w", payout.Period, payout.GameID, models.ErrConcurrentModification)
	}
	if err != nil {
		return fmt.Errorf("failed to create squares payout: %w", err)
	}
	return nil
}

// GetPayouts returns a board's period results in play order
func (r *SquaresRepository) GetPayouts(ctx context.Context, gameID int64) ([]*models.SquaresPayout, error) {
	query := `
		SELECT id, game_id, period, home_score, away_score, winner_user_id,
			purchase_id, amount, transaction_id, created_at
		FROM squares_payouts
		WHERE game_id = $1
		ORDER BY array_position(ARRAY['Q1', 'Q2', 'Q3', 'FINAL'], period)
	`

	rows, err := r.q.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payouts for game %d: %w", gameID, err)
	}
	defer rows.Close()

	var payouts []*models.SquaresPayout
	for rows.Next() {
		var p models.SquaresPayout
		err := rows.Scan(
			&p.ID,
			&p.GameID,
			&p.Period,
			&p.HomeScore,
			&p.AwayScore,
			&p.WinnerUserID,
			&p.PurchaseID,
			&p.Amount,
			&p.TransactionID,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan squares payout: %w", err)
		}
		payouts = append(payouts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate squares payouts: %w", err)
	}
	return payouts, nil
}
