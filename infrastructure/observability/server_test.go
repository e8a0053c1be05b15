package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sidebet/config"
	"sidebet/models"
	"sidebet/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRegistry_RecordsLastSuccess(t *testing.T) {
	registry := NewPrometheusRegistry(nil)

	registry.RecordSweep("payouts", &service.SweepResult{Name: "payouts", Succeeded: 2}, time.Second, nil)
	registry.RecordSweep("withdrawals", nil, time.Second, errors.New("boom"))

	server := httptest.NewServer(registry.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), SweepLastSuccessTimestamp+`{sweep="payouts"}`)
	assert.NotContains(t, string(body), `sweep="withdrawals"`)
}

func TestMetricsProvider_DisabledIsNoop(t *testing.T) {
	cfg := config.NewTestConfig()
	provider := NewMetricsProvider(cfg)
	require.NoError(t, provider.Initialize(context.Background()))

	assert.NotPanics(t, func() {
		provider.RecordSweep("expiry", &service.SweepResult{Succeeded: 1}, time.Millisecond, nil)
		provider.RecordNotificationDelivery("inbox", models.NotificationTypePayoutReceived, nil)
		provider.RecordEventPublished("bet_created", errors.New("down"))
	})
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestMetricsProvider_RejectsUnknownExporter(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.MetricsExporter = "carrier-pigeon"

	err := NewMetricsProvider(cfg).Initialize(context.Background())

	assert.Error(t, err)
}
