package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/stepline/stepline/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "stepline",
		Usage:                 "Manage onboarding workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file://, postgres://, redis://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Check a workflow's steps against the registered renderers",
				ArgsUsage: "<workflow-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"))

					return validateWorkflow(ctx, command)
				},
			},
			{
				Name:  "reminders",
				Usage: "Manage stale-onboarding reminders",
				Commands: []*cli.Command{
					{
						Name:    "run",
						Aliases: []string{"r"},
						Usage:   "Run the reminder scanner",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:    "schedule",
								Usage:   "Cron expression for the scan schedule",
								Value:   "0 * * * *",
								Sources: cli.EnvVars("REMINDER_SCHEDULE"),
							},
							&cli.DurationFlag{
								Name:    "idle-threshold",
								Usage:   "How long a record may sit untouched before a reminder",
								Sources: cli.EnvVars("REMINDER_IDLE_THRESHOLD"),
							},
							&cli.StringFlag{
								Name:    "event-bus",
								Usage:   "Event bus provider (gochannel, kafka)",
								Value:   "kafka",
								Sources: cli.EnvVars("EVENT_BUS"),
							},
							&cli.BoolFlag{
								Name:  "once",
								Usage: "Run a single scan and exit",
							},
						},
						Action: func(ctx context.Context, command *cli.Command) error {
							log.Setup(command.String("log-level"))

							return runReminders(ctx, command)
						},
					},
				},
			},
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
