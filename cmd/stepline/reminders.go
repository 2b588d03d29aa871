package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/stepline/stepline/pkg/cmd"
	"github.com/stepline/stepline/pkg/log"
	"github.com/stepline/stepline/pkg/reminder"
)

// runReminders starts the stale-onboarding scanner, either as a one-shot
// scan or on a cron schedule until interrupted.
func runReminders(ctx context.Context, command *cli.Command) error {
	logger := log.WithModule("reminders")

	persist, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persist.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), "stepline-reminders", logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	scanner, err := reminder.NewScanner(
		logger,
		persist.ProgressRepository(),
		eventBus,
		command.String("schedule"),
		command.Duration("idle-threshold"),
	)
	if err != nil {
		return err
	}

	if command.Bool("once") {
		return scanner.Scan(ctx)
	}

	if err := scanner.Start(ctx); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
	case <-ctx.Done():
	}

	logger.InfoContext(ctx, "Stopping reminder scanner")
	scanner.Stop()

	return nil
}
