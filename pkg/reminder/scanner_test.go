package reminder_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepline/stepline/pkg/eventbus"
	"github.com/stepline/stepline/pkg/events"
	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence/file"
	"github.com/stepline/stepline/pkg/reminder"
)

type capturingPublisher struct {
	published []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.published = append(p.published, event)

	return nil
}

func TestScanPublishesForIdleRecords(t *testing.T) {
	progress := file.NewProgressRepository(t.TempDir())
	publisher := &capturingPublisher{}

	stale := models.NewProgressRecord("user-1", "wf-1")
	stale.CurrentStep = 2
	stale.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, progress.Save(t.Context(), stale))

	fresh := models.NewProgressRecord("user-2", "wf-1")
	require.NoError(t, progress.Save(t.Context(), fresh))

	done := models.NewProgressRecord("user-3", "wf-1")
	done.IsComplete = true
	done.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, progress.Save(t.Context(), done))

	scanner, err := reminder.NewScanner(slog.Default(), progress, publisher, "", 24*time.Hour)
	require.NoError(t, err)

	require.NoError(t, scanner.Scan(t.Context()))

	require.Len(t, publisher.published, 1)
	due, ok := publisher.published[0].(events.ReminderDue)
	require.True(t, ok)
	assert.Equal(t, "user-1", due.UserID)
	assert.Equal(t, 2, due.CurrentStep)
}

func TestNewScannerRejectsBadSchedule(t *testing.T) {
	progress := file.NewProgressRepository(t.TempDir())

	_, err := reminder.NewScanner(slog.Default(), progress, &capturingPublisher{}, "not a cron", time.Hour)
	assert.Error(t, err)
}
