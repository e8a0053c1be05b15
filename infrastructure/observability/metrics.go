package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sidebet/config"
	"sidebet/models"
	"sidebet/service"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricsProvider manages the OpenTelemetry instruments for sweeps, notification
// delivery and event forwarding. Recording is a no-op until Initialize succeeds
// with an exporter other than "none".
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	enabled       bool
	initialized   bool
	mu            sync.RWMutex

	sweepRunsCounter       metric.Int64Counter
	sweepItemsCounter      metric.Int64Counter
	sweepDurationHist      metric.Float64Histogram
	notificationsCounter   metric.Int64Counter
	eventsPublishedCounter metric.Int64Counter
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{config: cfg}
}

// Initialize sets up the meter provider for the configured exporter
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Debug("Metrics provider already initialized")
		return nil
	}

	var exporter sdkmetric.Exporter
	var err error
	switch mp.config.MetricsExporter {
	case "console":
		exporter, err = stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console exporter: %w", err)
		}
		log.Info("Using console metric exporter")

	case "otlp":
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err = otlpmetricgrpc.New(dialCtx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		log.WithField("endpoint", mp.config.OTLPEndpoint).Info("Using OTLP metric exporter")

	case "none", "":
		log.Info("OpenTelemetry metric export disabled")
		mp.initialized = true
		return nil

	default:
		return fmt.Errorf("unknown exporter type: %s", mp.config.MetricsExporter)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.ServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	interval := mp.config.MetricsExportInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(mp.meterProvider)
	mp.meter = mp.meterProvider.Meter(mp.config.ServiceName)

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.enabled = true
	mp.initialized = true
	log.Info("Metrics provider initialized")
	return nil
}

func (mp *MetricsProvider) createInstruments() error {
	var err error

	mp.sweepRunsCounter, err = mp.meter.Int64Counter(
		SweepRunsTotal,
		metric.WithDescription("Total number of sweep runs"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create sweep runs counter: %w", err)
	}

	mp.sweepItemsCounter, err = mp.meter.Int64Counter(
		SweepItemsTotal,
		metric.WithDescription("Items processed by sweeps, by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create sweep items counter: %w", err)
	}

	mp.sweepDurationHist, err = mp.meter.Float64Histogram(
		SweepDuration,
		metric.WithDescription("Duration of sweep runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return fmt.Errorf("failed to create sweep duration histogram: %w", err)
	}

	mp.notificationsCounter, err = mp.meter.Int64Counter(
		NotificationDeliveryTotal,
		metric.WithDescription("Notification deliveries by sender and outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create notification delivery counter: %w", err)
	}

	mp.eventsPublishedCounter, err = mp.meter.Int64Counter(
		EventsPublishedTotal,
		metric.WithDescription("Domain events forwarded to the message broker"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create events published counter: %w", err)
	}
	return nil
}

// Shutdown flushes and stops the meter provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.enabled = false
	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordSweep records one sweep run. A nil result is recorded as a run only.
func (mp *MetricsProvider) RecordSweep(name string, result *service.SweepResult, duration time.Duration, err error) {
	if !mp.isEnabled() {
		return
	}
	ctx := context.Background()

	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	mp.sweepRunsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(LabelSweep, name),
		attribute.String(LabelOutcome, outcome),
	))
	mp.sweepDurationHist.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(LabelSweep, name),
	))

	if result == nil {
		return
	}
	for label, count := range map[string]int{
		OutcomeSucceeded: result.Succeeded,
		OutcomeSkipped:   result.Skipped,
		OutcomeFailed:    result.Failed,
	} {
		if count == 0 {
			continue
		}
		mp.sweepItemsCounter.Add(ctx, int64(count), metric.WithAttributes(
			attribute.String(LabelSweep, name),
			attribute.String(LabelOutcome, label),
		))
	}
}

// RecordNotificationDelivery records one sender delivering one notification
func (mp *MetricsProvider) RecordNotificationDelivery(sender string, notificationType models.NotificationType, err error) {
	if !mp.isEnabled() {
		return
	}
	mp.notificationsCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String(LabelSender, sender),
		attribute.String(LabelType, string(notificationType)),
		attribute.String(LabelOutcome, outcomeOf(err)),
	))
}

// RecordEventPublished records one forwarded domain event
func (mp *MetricsProvider) RecordEventPublished(eventType string, err error) {
	if !mp.isEnabled() {
		return
	}
	mp.eventsPublishedCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String(LabelEventType, eventType),
		attribute.String(LabelOutcome, outcomeOf(err)),
	))
}

func (mp *MetricsProvider) isEnabled() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.enabled
}

func outcomeOf(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

// Global metrics provider instance
var (
	globalMetrics *MetricsProvider
	metricsOnce   sync.Once
)

// InitializeGlobalMetrics initializes the global metrics provider
func InitializeGlobalMetrics(ctx context.Context, cfg *config.Config) error {
	var err error
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsProvider(cfg)
		err = globalMetrics.Initialize(ctx)
	})
	return err
}

// GetMetrics returns the global metrics provider
func GetMetrics() *MetricsProvider {
	return globalMetrics
}

// ShutdownGlobalMetrics shuts down the global metrics provider
func ShutdownGlobalMetrics(ctx context.Context) error {
	if globalMetrics != nil {
		return globalMetrics.Shutdown(ctx)
	}
	return nil
}
