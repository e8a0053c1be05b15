package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"sidebet/application"
	"sidebet/service"

	"github.com/olekukonko/tablewriter"
)

// SweepTargets are the sweep groups that can be run from the command line
var SweepTargets = []string{"expiry", "payouts", "withdrawals"}

// Sweep runs the named sweep group once, or every group for "all", and prints
// a summary table
func Sweep(ctx context.Context, target string, out io.Writer) error {
	app, err := newCore(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	clock := service.SystemClock{}
	workers := map[string]*application.SweepWorker{
		"expiry":      application.NewExpiryWorker(service.NewBetLifecycleService(app.uowFactory, app.cfg, clock), app.cfg.ExpirySweepInterval),
		"payouts":     application.NewPayoutWorker(service.NewPayoutService(app.uowFactory, app.cfg, clock), app.cfg.PayoutSweepInterval),
		"withdrawals": application.NewWithdrawalWorker(service.NewWalletService(app.uowFactory, app.cfg, clock), app.cfg.WithdrawalSweepInterval),
	}

	names := []string{target}
	if target == "all" {
		names = SweepTargets
	}

	var results []*service.SweepResult
	for _, name := range names {
		worker, ok := workers[name]
		if !ok {
			return fmt.Errorf("unknown sweep %q (expected one of expiry, payouts, withdrawals, all)", name)
		}
		results = append(results, worker.RunOnce(ctx)...)
	}

	renderSweepResults(out, results)
	return nil
}

func renderSweepResults(out io.Writer, results []*service.SweepResult) {
	table := tablewriter.NewWriter(out)
	table.Header("Sweep", "Examined", "Succeeded", "Skipped", "Failed")

	total := &service.SweepResult{Name: "total"}
	for _, r := range results {
		total.Add(r)
		table.Append(r.Name, strconv.Itoa(r.Examined), strconv.Itoa(r.Succeeded), strconv.Itoa(r.Skipped), strconv.Itoa(r.Failed))
	}
	table.Append(total.Name, strconv.Itoa(total.Examined), strconv.Itoa(total.Succeeded), strconv.Itoa(total.Skipped), strconv.Itoa(total.Failed))

	table.Render()
}
