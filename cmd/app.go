package cmd

import (
	"context"
	"fmt"

	"sidebet/config"
	"sidebet/database"
	"sidebet/events"
	"sidebet/repository"
	"sidebet/service"

	log "github.com/sirupsen/logrus"
)

// core holds what every command needs: the database, the event bus and the
// unit of work factory built on them
type core struct {
	cfg        *config.Config
	db         *database.DB
	eventBus   *events.Bus
	uowFactory service.UnitOfWorkFactory
}

func newCore(ctx context.Context) (*core, error) {
	cfg := config.Get()
	config.ConfigureLogging(cfg)

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL(), cfg.PoolOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established successfully")

	eventBus := events.NewBus()
	return &core{
		cfg:        cfg,
		db:         db,
		eventBus:   eventBus,
		uowFactory: repository.NewUnitOfWorkFactory(db, eventBus),
	}, nil
}

func (c *core) close() {
	c.db.Close()
}
