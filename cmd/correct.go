package cmd

import (
	"context"
	"fmt"
	"io"

	"sidebet/service"
)

// CompleteCorrection releases a paid bet held back by an upheld dispute once the
// ledger has been adjusted, and prints the bet's final state
func CompleteCorrection(ctx context.Context, betID, adminID int64, notes string, out io.Writer) error {
	app, err := newCore(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	bet, err := service.NewDisputeService(app.uowFactory, app.cfg, service.SystemClock{}).
		CompleteCorrection(ctx, betID, adminID, notes)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Bet %d %q is now %s\n", bet.ID, bet.Title, bet.Status)
	return nil
}
