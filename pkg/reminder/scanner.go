// Package reminder scans for stalled onboardings and emits reminder-due
// events. Notification delivery is a downstream consumer's concern.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/stepline/stepline/pkg/eventbus"
	"github.com/stepline/stepline/pkg/events"
	"github.com/stepline/stepline/pkg/persistence"
)

// DefaultSchedule runs the scan hourly.
const DefaultSchedule = "0 * * * *"

// DefaultIdleThreshold is how long a record may sit untouched before a
// reminder fires.
const DefaultIdleThreshold = 24 * time.Hour

// Scanner periodically lists incomplete progress records idle past the
// threshold and publishes one onboarding.reminder.due event per record.
type Scanner struct {
	logger    *slog.Logger
	progress  persistence.ProgressRepository
	publisher eventbus.EventPublisher
	schedule  string
	threshold time.Duration
	cron      *cron.Cron
}

// NewScanner creates a scanner; schedule is a standard 5-field cron
// expression and threshold the minimum idle duration.
func NewScanner(
	logger *slog.Logger,
	progress persistence.ProgressRepository,
	publisher eventbus.EventPublisher,
	schedule string,
	threshold time.Duration,
) (*Scanner, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	if threshold <= 0 {
		threshold = DefaultIdleThreshold
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", schedule, err)
	}

	return &Scanner{
		logger:    logger.With("module", "reminder_scanner"),
		progress:  progress,
		publisher: publisher,
		schedule:  schedule,
		threshold: threshold,
	}, nil
}

// Start schedules the periodic scan. It returns immediately; Stop halts
// the schedule.
func (s *Scanner) Start(ctx context.Context) error {
	s.cron = cron.New()

	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Scan(ctx); err != nil {
			s.logger.Error("reminder scan failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reminder scan: %w", err)
	}

	s.cron.Start()
	s.logger.Info("reminder scanner started", "schedule", s.schedule, "idle_threshold", s.threshold)

	return nil
}

// Stop halts the schedule, waiting for a running scan to finish.
func (s *Scanner) Stop() {
	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
}

// Scan runs one pass: every incomplete record idle past the threshold
// gets a reminder-due event.
func (s *Scanner) Scan(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.threshold)

	idle, err := s.progress.ListIdle(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list idle progress records: %w", err)
	}

	for _, record := range idle {
		event := events.ReminderDue{
			BaseEvent: events.BaseEvent{
				ID:         uuid.NewString(),
				Type:       events.ReminderDueEvent,
				Timestamp:  time.Now().UTC(),
				WorkflowID: record.WorkflowID,
				UserID:     record.UserID,
			},
			CurrentStep: record.CurrentStep,
			IdleSince:   record.UpdatedAt,
		}

		if err := s.publisher.Publish(ctx, record.UserID, event); err != nil {
			s.logger.Warn("failed to publish reminder",
				"user_id", record.UserID, "workflow_id", record.WorkflowID, "error", err)

			continue
		}

		s.logger.Info("reminder published",
			"user_id", record.UserID, "workflow_id", record.WorkflowID, "current_step", record.CurrentStep)
	}

	return nil
}
