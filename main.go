package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"sidebet/cmd"
	"sidebet/database"

	log "github.com/sirupsen/logrus"
)

const usage = `usage: sidebet [command]

commands:
  run                               start the settlement workers (default)
  migrate up|down [steps]|status    manage the database schema
  sweep expiry|payouts|withdrawals|all
                                    run sweeps once and print a summary
  trust <userID>                    show a user's trust profile and history
  inbox <userID> [--unread]         show a user's notifications
  disputes                          show the open dispute queue
  correct <betID> <adminID> [notes] close a paid bet after a manual payout correction`

func main() {
	command := "run"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command == "migrate" {
		if err := handleMigrationCommand(os.Args[2:]); err != nil {
			log.Fatal("Migration error: ", err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	if err := dispatch(ctx, command, os.Args[2:]); err != nil {
		log.Fatal("Application error: ", err)
	}
}

func dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "run":
		return cmd.Run(ctx)
	case "sweep":
		target := "all"
		if len(args) > 0 {
			target = args[0]
		}
		return cmd.Sweep(ctx, target, os.Stdout)
	case "trust":
		userID, err := parseUserID(args)
		if err != nil {
			return err
		}
		return cmd.TrustReport(ctx, userID, os.Stdout)
	case "inbox":
		userID, err := parseUserID(args)
		if err != nil {
			return err
		}
		unreadOnly := len(args) > 1 && args[1] == "--unread"
		return cmd.InboxReport(ctx, userID, unreadOnly, os.Stdout)
	case "disputes":
		return cmd.DisputeQueueReport(ctx, os.Stdout)
	case "correct":
		if len(args) < 2 {
			return fmt.Errorf("a bet id and an admin id are required\n%s", usage)
		}
		betID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid bet id %q: %w", args[0], err)
		}
		adminID, err := parseUserID(args[1:])
		if err != nil {
			return err
		}
		return cmd.CompleteCorrection(ctx, betID, adminID, strings.Join(args[2:], " "), os.Stdout)
	case "help", "-h", "--help":
		fmt.Println(usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

func parseUserID(args []string) (int64, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("a user id is required\n%s", usage)
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q: %w", args[0], err)
	}
	return userID, nil
}

func handleMigrationCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: sidebet migrate [up|down|status] [args...]")
	}

	switch args[0] {
	case "up":
		return database.MigrateUp()
	case "down":
		steps := "1"
		if len(args) > 1 {
			steps = args[1]
		}
		return database.MigrateDown(steps)
	case "status":
		return database.MigrateStatus()
	default:
		return fmt.Errorf("unknown migration command: %s", args[0])
	}
}
