package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sidebet/models"
	"sidebet/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordedSweep struct {
	name   string
	failed bool
}

type fakeSweepRecorder struct {
	mu   sync.Mutex
	runs []recordedSweep
}

func (r *fakeSweepRecorder) RecordSweep(name string, _ *service.SweepResult, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, recordedSweep{name: name, failed: err != nil})
}

func (r *fakeSweepRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func TestSweepWorker_RunOnce_ContinuesAfterFailure(t *testing.T) {
	recorder := &fakeSweepRecorder{}
	var order []string

	worker := NewSweepWorker("test", time.Minute, []Sweep{
		{Name: "first", Run: func(ctx context.Context) (*service.SweepResult, error) {
			order = append(order, "first")
			return nil, errors.New("database unavailable")
		}},
		{Name: "second", Run: func(ctx context.Context) (*service.SweepResult, error) {
			order = append(order, "second")
			return &service.SweepResult{Name: "second", Examined: 3, Succeeded: 2, Skipped: 1}, nil
		}},
	}, recorder)

	results := worker.RunOnce(context.Background())

	assert.Equal(t, []string{"first", "second"}, order)
	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].Name)
	assert.Zero(t, results[0].Examined)
	assert.Equal(t, 2, results[1].Succeeded)
	assert.Equal(t, []recordedSweep{{name: "first", failed: true}, {name: "second"}}, recorder.runs)
}

func TestSweepWorker_RunOnce_StopsWhenCancelled(t *testing.T) {
	called := false
	worker := NewSweepWorker("test", time.Minute, []Sweep{
		{Name: "never", Run: func(ctx context.Context) (*service.SweepResult, error) {
			called = true
			return &service.SweepResult{}, nil
		}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Empty(t, worker.RunOnce(ctx))
	assert.False(t, called)
}

func TestSweepWorker_StartRunsImmediatelyAndStops(t *testing.T) {
	recorder := &fakeSweepRecorder{}
	worker := NewSweepWorker("ticking", 10*time.Millisecond, []Sweep{
		{Name: "tick", Run: func(ctx context.Context) (*service.SweepResult, error) {
			return &service.SweepResult{}, nil
		}},
	}, recorder)

	stop := worker.Start(context.Background())
	assert.Eventually(t, func() bool { return recorder.count() >= 2 }, time.Second, 5*time.Millisecond)

	stop()
	stop()
	stopped := recorder.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, recorder.count(), "no runs after stop returns")
}

func TestNewPayoutWorker_RunsPayoutSweep(t *testing.T) {
	mocks := service.NewTestMocks()
	helper := service.NewMockHelper(mocks)
	helper.ExpectTransaction(false)
	mocks.BetRepo.On("GetByStatus", mock.Anything, models.BetStatusPendingResolution).Return([]*models.Bet{}, nil)

	cfg := service.SetupTestConfig(t)
	payouts := service.NewPayoutService(mocks.Factory, cfg, service.FixedClock{At: service.TestNow})
	recorder := &fakeSweepRecorder{}

	worker := NewPayoutWorker(payouts, time.Minute, recorder)
	results := worker.RunOnce(context.Background())

	assert.Equal(t, "payouts", worker.Name())
	require.Len(t, results, 1)
	assert.Zero(t, results[0].Examined)
	assert.Equal(t, []recordedSweep{{name: "ready_payouts"}}, recorder.runs)
	mocks.BetRepo.AssertExpectations(t)
}
