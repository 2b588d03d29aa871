package postgresql_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
	"github.com/stepline/stepline/pkg/persistence/postgresql"
)

var postgresContainer *tcpostgres.PostgresContainer

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("stepline_test"),
			tcpostgres.WithUsername("stepline"),
			tcpostgres.WithPassword("stepline"),
			tcpostgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropTables(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropTables(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func dropTables(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, db.Close())
	}()

	_, err = db.ExecContext(ctx, `
		DROP TABLE IF EXISTS schema_migrations, workflows, progress_records, orders, gift_redemptions
	`)
	require.NoError(t, err)
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, db.Close())
	}()

	for _, table := range []string{"workflows", "progress_records", "orders", "gift_redemptions"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}
}

func TestWorkflowRepository_Roundtrip(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRepository()

	workflow := &models.Workflow{
		Name:        "Minister Onboarding",
		Description: "Guided trust setup",
		Status:      models.WorkflowStatusPublished,
		Steps: []*models.StepDefinition{
			{ID: "identity", DisplayName: "Identity", Order: 1, Required: true},
			{ID: "trust-name", DisplayName: "Trust Naming", Order: 2, Required: true},
			{ID: "payment", DisplayName: "Payment", Order: 3, Required: true},
		},
		Owner: "admin",
	}

	require.NoError(t, repo.Save(ctx, workflow))
	require.NotEmpty(t, workflow.ID)

	loaded, err := repo.GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, loaded.Name)
	require.Len(t, loaded.Steps, 3)
	assert.Equal(t, "trust-name", loaded.Steps[1].ID)

	require.NoError(t, repo.Delete(ctx, workflow.ID))

	_, err = repo.GetByID(ctx, workflow.ID)
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestProgressRepository_StepDataUpsert(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ProgressRepository()

	err := repo.SaveStepData(ctx, "user-1", "wf-1", "identity", json.RawMessage(`{"name":"ada"}`))
	require.NoError(t, err)

	err = repo.SaveStepData(ctx, "user-1", "wf-1", "trust-name", json.RawMessage(`{"trust":"oak"}`))
	require.NoError(t, err)

	err = repo.SaveStepData(ctx, "user-1", "wf-1", "identity", json.RawMessage(`{"name":"grace"}`))
	require.NoError(t, err)

	data, err := repo.StepData(ctx, "user-1", "wf-1")
	require.NoError(t, err)
	require.Len(t, data, 2)
	assert.JSONEq(t, `{"name":"grace"}`, string(data["identity"]))
	assert.JSONEq(t, `{"trust":"oak"}`, string(data["trust-name"]))

	record, err := repo.Get(ctx, "user-1", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 1, record.CurrentStep)
	assert.False(t, record.IsComplete)
}

func TestProgressRepository_SaveAndListIdle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ProgressRepository()

	record := models.NewProgressRecord("user-idle", "wf-1")
	record.CurrentStep = 2
	record.MarkCompleted(1)
	require.NoError(t, repo.Save(ctx, record))

	done := models.NewProgressRecord("user-done", "wf-1")
	done.IsComplete = true
	require.NoError(t, repo.Save(ctx, done))

	idle, err := repo.ListIdle(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, idle, 1)
	assert.Equal(t, "user-idle", idle[0].UserID)
	assert.Equal(t, []int{1}, idle[0].CompletedSteps)
}

func TestEntitlementRepository_OrdersAndRedemptions(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.EntitlementRepository()

	_, err := repo.PaidOrder(ctx, "user-1", "wf-1")
	assert.ErrorIs(t, err, persistence.ErrOrderNotFound)

	order := &models.Order{UserID: "user-1", WorkflowID: "wf-1", Status: models.OrderStatusPaid, OrderRef: "ch_123"}
	require.NoError(t, repo.SaveOrder(ctx, order))

	paid, err := repo.PaidOrder(ctx, "user-1", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "ch_123", paid.OrderRef)

	redemption := &models.GiftRedemption{Code: "GIFT-1", RedeemedBy: "user-2", WorkflowID: "wf-1"}
	require.NoError(t, repo.SaveRedemption(ctx, redemption))

	err = repo.SaveRedemption(ctx, &models.GiftRedemption{Code: "GIFT-1", RedeemedBy: "user-3", WorkflowID: "wf-1"})
	assert.ErrorIs(t, err, persistence.ErrCodeAlreadyRedeemed)

	byUser, err := repo.Redemption(ctx, "user-2", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "GIFT-1", byUser.Code)
}
