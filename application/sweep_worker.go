package application

import (
	"context"
	"sync"
	"time"

	"sidebet/service"

	log "github.com/sirupsen/logrus"
)

// SweepRecorder observes finished sweep runs
type SweepRecorder interface {
	RecordSweep(name string, result *service.SweepResult, duration time.Duration, err error)
}

// Sweep is one named pass run by a worker
type Sweep struct {
	Name string
	Run  func(ctx context.Context) (*service.SweepResult, error)
}

// SweepWorker runs its sweeps in order on a fixed interval
type SweepWorker struct {
	name      string
	interval  time.Duration
	sweeps    []Sweep
	recorders []SweepRecorder

	// running serializes passes so a slow pass and a manual RunOnce never overlap
	running sync.Mutex
}

// NewSweepWorker creates a worker. Recorders are optional.
func NewSweepWorker(name string, interval time.Duration, sweeps []Sweep, recorders ...SweepRecorder) *SweepWorker {
	return &SweepWorker{
		name:      name,
		interval:  interval,
		sweeps:    sweeps,
		recorders: recorders,
	}
}

// NewExpiryWorker closes bets past their deadline and penalizes creators who
// never declared a result
func NewExpiryWorker(lifecycle service.BetLifecycleService, interval time.Duration, recorders ...SweepRecorder) *SweepWorker {
	return NewSweepWorker("expiry", interval, []Sweep{
		{Name: "expire_bets", Run: lifecycle.TransitionExpiredBets},
		{Name: "overdue_resolutions", Run: lifecycle.PenalizeOverdueResolutions},
	}, recorders...)
}

// NewPayoutWorker settles bets whose dispute window has closed
func NewPayoutWorker(payouts service.PayoutService, interval time.Duration, recorders ...SweepRecorder) *SweepWorker {
	return NewSweepWorker("payouts", interval, []Sweep{
		{Name: "ready_payouts", Run: payouts.ProcessReadyPayouts},
	}, recorders...)
}

// NewWithdrawalWorker settles withdrawals whose holding period has elapsed
func NewWithdrawalWorker(wallet service.WalletService, interval time.Duration, recorders ...SweepRecorder) *SweepWorker {
	return NewSweepWorker("withdrawals", interval, []Sweep{
		{Name: "due_withdrawals", Run: wallet.ProcessDueWithdrawals},
	}, recorders...)
}

// Name returns the worker name
func (w *SweepWorker) Name() string {
	return w.name
}

// RunOnce runs every sweep once and returns their results in order. A failing
// sweep is logged and does not stop the ones after it.
func (w *SweepWorker) RunOnce(ctx context.Context) []*service.SweepResult {
	w.running.Lock()
	defer w.running.Unlock()

	results := make([]*service.SweepResult, 0, len(w.sweeps))
	for _, sweep := range w.sweeps {
		if ctx.Err() != nil {
			break
		}

		start := time.Now()
		result, err := sweep.Run(ctx)
		duration := time.Since(start)

		for _, recorder := range w.recorders {
			recorder.RecordSweep(sweep.Name, result, duration, err)
		}
		if err != nil {
			log.WithFields(log.Fields{
				"worker": w.name,
				"sweep":  sweep.Name,
			}).WithError(err).Error("Sweep run failed")
		}

		if result == nil {
			result = &service.SweepResult{}
		}
		if result.Name == "" {
			result.Name = sweep.Name
		}
		results = append(results, result)
	}
	return results
}

// Start runs the sweeps immediately and then on every tick.
// Returns a cleanup function to stop the worker.
func (w *SweepWorker) Start(ctx context.Context) func() {
	ticker := time.NewTicker(w.interval)
	stopChan := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		log.WithFields(log.Fields{
			"worker":   w.name,
			"interval": w.interval,
		}).Info("Sweep worker started")

		w.RunOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				log.WithField("worker", w.name).Info("Sweep worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.WithField("worker", w.name).Info("Sweep worker shutting down (stop requested)...")
				return
			case <-ticker.C:
				w.RunOnce(ctx)
			}
		}
	}()

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			ticker.Stop()
			close(stopChan)
			<-done
		})
	}
}
