package service

import (
	"context"
	"errors"
	"time"

	"sidebet/models"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// errItemSkipped marks a sweep item whose preconditions no longer hold
var errItemSkipped = errors.New("sweep item skipped")

// SweepResult summarizes one pass of a periodic sweep
type SweepResult struct {
	Name      string
	Examined  int
	Succeeded int
	Skipped   int
	Failed    int
}

// Add folds another result into r
func (r *SweepResult) Add(other *SweepResult) {
	if other == nil {
		return
	}
	r.Examined += other.Examined
	r.Succeeded += other.Succeeded
	r.Skipped += other.Skipped
	r.Failed += other.Failed
}

// newSweepLimiter paces sweep writes. A non-positive rate disables pacing.
func newSweepLimiter(writesPerSecond float64) *rate.Limiter {
	if writesPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(writesPerSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(writesPerSecond), burst)
}

// runSweep processes each item independently. A failing item is logged and
// counted and never stops the sweep. Cancellation is honoured between items.
func runSweep[T any](ctx context.Context, name string, limiter *rate.Limiter, items []T, key func(T) int64, process func(context.Context, T) error) (*SweepResult, error) {
	start := time.Now()
	result := &SweepResult{Name: name, Examined: len(items)}

	for _, item := range items {
		if err := limiter.Wait(ctx); err != nil {
			return result, err
		}

		err := process(ctx, item)
		switch {
		case err == nil:
			result.Succeeded++
		case errors.Is(err, errItemSkipped), errors.Is(err, models.ErrConcurrentModification):
			result.Skipped++
			log.WithFields(log.Fields{
				"sweep": name,
				"id":    key(item),
				"cause": err.Error(),
			}).Debug("Sweep item skipped")
		default:
			result.Failed++
			log.WithFields(log.Fields{
				"sweep": name,
				"id":    key(item),
			}).WithError(err).Error("Failed to process sweep item")
		}
	}

	if result.Examined > 0 {
		log.WithFields(log.Fields{
			"sweep":     name,
			"examined":  result.Examined,
			"succeeded": result.Succeeded,
			"skipped":   result.Skipped,
			"failed":    result.Failed,
			"duration":  time.Since(start),
		}).Info("Sweep completed")
	}
	return result, nil
}

func betKey(b *models.Bet) int64                 { return b.ID }
func transactionKey(t *models.Transaction) int64 { return t.ID }
