package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sidebet/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// HealthFunc reports whether the service can serve traffic
type HealthFunc func(ctx context.Context) error

// PrometheusRegistry exposes pull metrics for /metrics: process and Go runtime
// collectors, pgx pool statistics and the time each sweep last succeeded.
type PrometheusRegistry struct {
	registry    *prometheus.Registry
	lastSuccess *prometheus.GaugeVec
}

// NewPrometheusRegistry creates a registry. pool may be nil.
func NewPrometheusRegistry(pool *pgxpool.Pool) *PrometheusRegistry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	lastSuccess := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: SweepLastSuccessTimestamp,
			Help: "Unix time of the last sweep run that finished without error",
		},
		[]string{LabelSweep},
	)
	registry.MustRegister(lastSuccess)

	if pool != nil {
		registry.MustRegister(newPoolCollector(pool))
	}

	return &PrometheusRegistry{registry: registry, lastSuccess: lastSuccess}
}

// RecordSweep stamps the last success time for sweeps that did not error
func (r *PrometheusRegistry) RecordSweep(name string, _ *service.SweepResult, _ time.Duration, err error) {
	if err != nil {
		return
	}
	r.lastSuccess.WithLabelValues(name).SetToCurrentTime()
}

// Handler serves the registry in the Prometheus exposition format
func (r *PrometheusRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// StartMetricsServer serves /metrics and /healthz on addr in a background goroutine
func StartMetricsServer(addr string, registry *PrometheusRegistry, healthFn HealthFunc) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		if err := healthFn(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("unhealthy: %v", err)))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithField("addr", addr).Info("Metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server stopped")
		}
	}()

	return srv
}

type poolCollector struct {
	pool        *pgxpool.Pool
	connections *prometheus.Desc
	acquires    *prometheus.Desc
	emptyWaits  *prometheus.Desc
}

func newPoolCollector(pool *pgxpool.Pool) *poolCollector {
	return &poolCollector{
		pool: pool,
		connections: prometheus.NewDesc(DatabasePoolConnections,
			"Connections in the database pool by state", []string{LabelState}, nil),
		acquires: prometheus.NewDesc(DatabasePoolAcquiresTotal,
			"Connections acquired from the pool", nil, nil),
		emptyWaits: prometheus.NewDesc(DatabasePoolEmptyWaitTotal,
			"Acquires that waited because the pool was empty", nil, nil),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connections
	ch <- c.acquires
	ch <- c.emptyWaits
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(stat.AcquiredConns()), "acquired")
	ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(stat.IdleConns()), "idle")
	ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(stat.MaxConns()), "max")
	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(stat.AcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.emptyWaits, prometheus.CounterValue, float64(stat.EmptyAcquireCount()))
}
