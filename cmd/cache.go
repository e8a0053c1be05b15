package cmd

import (
	"context"
	"fmt"
	"time"

	"sidebet/infrastructure"
	"sidebet/service"

	log "github.com/sirupsen/logrus"
)

// newListCache connects to Redis when an address is configured and falls back
// to the in-process cache otherwise
func newListCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (service.ListCache, func(), error) {
	if addr == "" {
		log.Info("Using in-process list cache")
		return infrastructure.NewMemoryListCache(ttl), func() {}, nil
	}

	client, err := infrastructure.ConnectRedis(ctx, addr, password, db)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect list cache: %w", err)
	}
	log.WithField("addr", addr).Info("Using Redis list cache")
	return infrastructure.NewRedisListCache(client, ttl), func() {
		if err := client.Close(); err != nil {
			log.WithError(err).Warn("Error closing Redis client")
		}
	}, nil
}
