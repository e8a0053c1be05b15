package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"sidebet/models"
	"sidebet/service"

	"github.com/olekukonko/tablewriter"
)

const reportLimit = 25

// TrustReport prints a user's trust tier and recent score changes
func TrustReport(ctx context.Context, userID int64, out io.Writer) error {
	app, err := newCore(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	trust := service.NewTrustScoreService(app.uowFactory, service.SystemClock{})
	profile, err := trust.GetTrustProfile(ctx, userID)
	if err != nil {
		return err
	}
	history, err := trust.GetHistory(ctx, userID, reportLimit)
	if err != nil {
		return err
	}

	renderTrustProfile(out, profile)
	renderTrustHistory(out, history)
	return nil
}

// InboxReport prints a user's notifications, newest first
func InboxReport(ctx context.Context, userID int64, unreadOnly bool, out io.Writer) error {
	app, err := newCore(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	notifications, err := service.NewNotificationService(app.uowFactory, service.SystemClock{}).
		ListNotifications(ctx, userID, unreadOnly, reportLimit)
	if err != nil {
		return err
	}

	renderNotifications(out, notifications)
	return nil
}

// DisputeQueueReport prints the open disputes awaiting an administrator, oldest first
func DisputeQueueReport(ctx context.Context, out io.Writer) error {
	app, err := newCore(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	disputes, err := service.NewDisputeService(app.uowFactory, app.cfg, service.SystemClock{}).
		ListOpenDisputes(ctx, reportLimit)
	if err != nil {
		return err
	}

	renderDisputes(out, disputes)
	return nil
}

func renderTrustProfile(out io.Writer, profile *service.TrustProfile) {
	caps := profile.Capabilities
	fmt.Fprintf(out, "User %d  trust %.2f  tier %s\n", profile.UserID, profile.Score, caps.Tier)
	fmt.Fprintf(out, "  max stake %s  can create bets %t  can withdraw %t (delay %s)\n",
		caps.MaxStake.StringFixed(2), caps.CanCreateBets, caps.CanWithdraw, caps.WithdrawalDelay)
}

func renderTrustHistory(out io.Writer, history []*models.TrustScoreHistory) {
	table := tablewriter.NewWriter(out)
	table.Header("When", "Reason", "Delta", "Score")
	for _, h := range history {
		table.Append(
			h.CreatedAt.Format(time.RFC3339),
			string(h.Reason),
			fmt.Sprintf("%+.2f", h.Delta),
			fmt.Sprintf("%.2f -> %.2f", h.PreviousScore, h.NewScore),
		)
	}
	table.Render()
}

func renderNotifications(out io.Writer, notifications []*models.Notification) {
	table := tablewriter.NewWriter(out)
	table.Header("ID", "When", "Priority", "Type", "Title", "Read")
	for _, n := range notifications {
		read := ""
		if n.IsRead() {
			read = "yes"
		}
		table.Append(
			strconv.FormatInt(n.ID, 10),
			n.CreatedAt.Format(time.RFC3339),
			string(n.Priority),
			strings.ToLower(string(n.Type)),
			n.Title,
			read,
		)
	}
	table.Render()
}

func renderDisputes(out io.Writer, disputes []*models.Dispute) {
	table := tablewriter.NewWriter(out)
	table.Header("ID", "Bet", "Filed by", "Reason", "Status", "Filed")
	for _, d := range disputes {
		table.Append(
			strconv.FormatInt(d.ID, 10),
			strconv.FormatInt(d.BetID, 10),
			strconv.FormatInt(d.FiledBy, 10),
			string(d.Reason),
			string(d.Status),
			d.CreatedAt.Format(time.RFC3339),
		)
	}
	table.Render()
}
