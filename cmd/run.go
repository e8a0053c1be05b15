package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sidebet/application"
	"sidebet/infrastructure"
	"sidebet/infrastructure/observability"
	"sidebet/service"

	log "github.com/sirupsen/logrus"
)

const healthCheckTimeout = 2 * time.Second

// Run wires the settlement workers, notification delivery and event
// forwarding, then blocks until ctx is cancelled
func Run(ctx context.Context) error {
	log.Info("Starting sidebet...")

	app, err := newCore(ctx)
	if err != nil {
		return err
	}
	defer app.close()
	cfg := app.cfg

	// Metrics
	if err := observability.InitializeGlobalMetrics(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	metrics := observability.GetMetrics()
	registry := observability.NewPrometheusRegistry(app.db.Pool)
	metricsServer := observability.StartMetricsServer(cfg.MetricsAddr, registry, func(ctx context.Context) error {
		return app.db.Healthy(ctx, healthCheckTimeout)
	})

	// List cache invalidation
	listCache, closeCache, err := newListCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ListCacheTTL)
	if err != nil {
		return err
	}
	defer closeCache()
	service.RegisterBetCacheInvalidation(app.eventBus, listCache)

	// Notification delivery. The inbox always goes first.
	senders := []infrastructure.NotificationSender{infrastructure.NewInboxNotificationSender(app.uowFactory)}

	var natsClient *infrastructure.NATSClient
	if cfg.NATSServers != "" {
		log.Info("Connecting to NATS...")
		natsClient = infrastructure.NewNATSClient(cfg.NATSServers)
		if err := natsClient.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsClient.Close()

		if err := natsClient.EnsureEventStream(); err != nil {
			return fmt.Errorf("failed to ensure event stream: %w", err)
		}
		infrastructure.NewEventForwarder(natsClient, metrics).Register(app.eventBus)
		senders = append(senders, infrastructure.NewNATSNotificationSender(natsClient))
		log.Info("NATS event forwarding enabled")
	}

	var kafkaSender *infrastructure.KafkaNotificationSender
	if len(cfg.KafkaBrokers) > 0 {
		writer := infrastructure.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaNotificationTopic)
		kafkaSender = infrastructure.NewKafkaNotificationSender(writer)
		senders = append(senders, kafkaSender)
		log.WithField("topic", cfg.KafkaNotificationTopic).Info("Kafka notification stream enabled")
	}

	infrastructure.NewNotificationDispatcher(metrics, senders...).Register(app.eventBus)

	// Workers
	clock := service.SystemClock{}
	lifecycleService := service.NewBetLifecycleService(app.uowFactory, cfg, clock)
	payoutService := service.NewPayoutService(app.uowFactory, cfg, clock)
	walletService := service.NewWalletService(app.uowFactory, cfg, clock)

	workers := []*application.SweepWorker{
		application.NewExpiryWorker(lifecycleService, cfg.ExpirySweepInterval, metrics, registry),
		application.NewPayoutWorker(payoutService, cfg.PayoutSweepInterval, metrics, registry),
		application.NewWithdrawalWorker(walletService, cfg.WithdrawalSweepInterval, metrics, registry),
	}
	stops := make([]func(), 0, len(workers))
	for _, worker := range workers {
		stops = append(stops, worker.Start(ctx))
	}

	log.Infof("sidebet is running in %s mode...", cfg.Environment)
	<-ctx.Done()

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	log.Info("Stopping workers...")
	for _, stop := range stops {
		stop()
	}

	if kafkaSender != nil {
		log.Info("Closing Kafka writer...")
		if err := kafkaSender.Close(); err != nil {
			log.WithError(err).Warn("Error closing Kafka writer")
		}
	}

	log.Info("Stopping metrics server...")
	if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Warn("Error stopping metrics server")
	}
	if err := observability.ShutdownGlobalMetrics(shutdownCtx); err != nil {
		log.WithError(err).Warn("Error shutting down metrics provider")
	}

	log.Info("Shutdown completed")
	return nil
}
