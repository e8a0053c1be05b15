package repository

import (
	"context"
	"errors"
	"fmt"

	"sidebet/database"
	"sidebet/events"
	"sidebet/service"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

const errNotStarted = "unit of work not started - call Begin() first"

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db               *database.DB
	tx               pgx.Tx
	ctx              context.Context
	transactionalBus *events.TransactionalBus
	userRepo         service.UserRepository
	betRepo          service.BetRepository
	transactionRepo  service.TransactionRepository
	disputeRepo      service.DisputeRepository
	trustHistoryRepo service.TrustScoreHistoryRepository
	notificationRepo service.NotificationRepository
	squaresRepo      service.SquaresRepository
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB, eventBus *events.Bus) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:       db,
		eventBus: eventBus,
	}
}

type unitOfWorkFactory struct {
	db       *database.DB
	eventBus *events.Bus
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	u.userRepo = newUserRepositoryWithTx(tx)
	u.betRepo = newBetRepositoryWithTx(tx)
	u.transactionRepo = newTransactionRepositoryWithTx(tx)
	u.disputeRepo = newDisputeRepositoryWithTx(tx)
	u.trustHistoryRepo = newTrustScoreHistoryRepositoryWithTx(tx)
	u.notificationRepo = newNotificationRepositoryWithTx(tx)
	u.squaresRepo = newSquaresRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	err := u.tx.Commit(u.ctx)
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.tx = nil

	// Flush pending events after successful commit
	if u.transactionalBus != nil {
		if err := u.transactionalBus.Flush(u.ctx); err != nil {
			log.WithError(err).Error("Failed to flush events after commit")
		}
	}

	return nil
}

// Rollback rolls back the transaction
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Nothing to rollback
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil

	// Discard pending events on rollback
	if u.transactionalBus != nil {
		u.transactionalBus.Discard()
	}

	return nil
}

// UserRepository returns the user repository for this unit of work
func (u *unitOfWork) UserRepository() service.UserRepository {
	if u.userRepo == nil {
		panic(errNotStarted)
	}
	return u.userRepo
}

// BetRepository returns the bet repository for this unit of work
func (u *unitOfWork) BetRepository() service.BetRepository {
	if u.betRepo == nil {
		panic(errNotStarted)
	}
	return u.betRepo
}

// TransactionRepository returns the ledger repository for this unit of work
func (u *unitOfWork) TransactionRepository() service.TransactionRepository {
	if u.transactionRepo == nil {
		panic(errNotStarted)
	}
	return u.transactionRepo
}

// DisputeRepository returns the dispute repository for this unit of work
func (u *unitOfWork) DisputeRepository() service.DisputeRepository {
	if u.disputeRepo == nil {
		panic(errNotStarted)
	}
	return u.disputeRepo
}

// TrustScoreHistoryRepository returns the trust history repository for this unit of work
func (u *unitOfWork) TrustScoreHistoryRepository() service.TrustScoreHistoryRepository {
	if u.trustHistoryRepo == nil {
		panic(errNotStarted)
	}
	return u.trustHistoryRepo
}

// NotificationRepository returns the notification repository for this unit of work
func (u *unitOfWork) NotificationRepository() service.NotificationRepository {
	if u.notificationRepo == nil {
		panic(errNotStarted)
	}
	return u.notificationRepo
}

// SquaresRepository returns the squares repository for this unit of work
func (u *unitOfWork) SquaresRepository() service.SquaresRepository {
	if u.squaresRepo == nil {
		panic(errNotStarted)
	}
	return u.squaresRepo
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() service.EventPublisher {
	if u.transactionalBus == nil {
		panic(errNotStarted)
	}
	return u.transactionalBus
}
