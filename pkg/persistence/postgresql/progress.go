package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

// ProgressRepository handles progress-record database operations.
type ProgressRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewProgressRepository creates a new progress repository.
func NewProgressRepository(db *sql.DB, logger *slog.Logger) *ProgressRepository {
	return &ProgressRepository{db: db, logger: logger}
}

const progressColumns = `
	user_id
  , workflow_id
  , current_step
  , completed_steps
  , step_data
  , is_complete
  , created_at
  , updated_at
`

// Get returns the progress record, or persistence.ErrProgressNotFound.
func (r *ProgressRepository) Get(ctx context.Context, userID, workflowID string) (*models.ProgressRecord, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM progress_records
		WHERE user_id = $1 AND workflow_id = $2
	`

	record, err := scanProgress(r.db.QueryRowContext(ctx, query, userID, workflowID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewProgressError("Get", userID, workflowID, persistence.ErrProgressNotFound)
		}

		return nil, persistence.NewProgressError("Get", userID, workflowID, err)
	}

	return record, nil
}

// Save upserts the full progress record.
func (r *ProgressRepository) Save(ctx context.Context, record *models.ProgressRecord) error {
	now := time.Now().UTC()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	record.UpdatedAt = now

	completedJSON, err := json.Marshal(record.CompletedSteps)
	if err != nil {
		return persistence.NewProgressError("Save", record.UserID, record.WorkflowID, err)
	}

	stepDataJSON, err := json.Marshal(record.StepData)
	if err != nil {
		return persistence.NewProgressError("Save", record.UserID, record.WorkflowID, err)
	}

	query := `
		INSERT INTO progress_records (user_id, workflow_id, current_step, completed_steps, step_data, is_complete, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, workflow_id) DO UPDATE SET
			current_step = EXCLUDED.current_step,
			completed_steps = EXCLUDED.completed_steps,
			step_data = EXCLUDED.step_data,
			is_complete = EXCLUDED.is_complete,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		record.UserID,
		record.WorkflowID,
		record.CurrentStep,
		completedJSON,
		stepDataJSON,
		record.IsComplete,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return persistence.NewProgressError("Save", record.UserID, record.WorkflowID, err)
	}

	return nil
}

// Delete removes the progress record. Deleting a missing record is not an error.
func (r *ProgressRepository) Delete(ctx context.Context, userID, workflowID string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM progress_records WHERE user_id = $1 AND workflow_id = $2",
		userID, workflowID)
	if err != nil {
		return persistence.NewProgressError("Delete", userID, workflowID, err)
	}

	return nil
}

// SaveStepData upserts a single step payload by stable step ID. The jsonb
// concat touches only the written key, so a failed write cannot disturb
// previously stored keys.
func (r *ProgressRepository) SaveStepData(ctx context.Context, userID, workflowID, stepID string, payload json.RawMessage) error {
	entry, err := json.Marshal(map[string]json.RawMessage{stepID: payload})
	if err != nil {
		return persistence.NewStepDataError("SaveStepData", userID, workflowID, stepID, err)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO progress_records (user_id, workflow_id, current_step, completed_steps, step_data, is_complete, created_at, updated_at)
		VALUES ($1, $2, 1, '[]', $3, FALSE, $4, $4)
		ON CONFLICT (user_id, workflow_id) DO UPDATE SET
			step_data = progress_records.step_data || EXCLUDED.step_data,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query, userID, workflowID, entry, now)
	if err != nil {
		return persistence.NewStepDataError("SaveStepData", userID, workflowID, stepID, err)
	}

	return nil
}

// StepData returns all saved payloads, empty when nothing is saved yet.
func (r *ProgressRepository) StepData(ctx context.Context, userID, workflowID string) (map[string]json.RawMessage, error) {
	var stepDataJSON []byte

	err := r.db.QueryRowContext(ctx,
		"SELECT step_data FROM progress_records WHERE user_id = $1 AND workflow_id = $2",
		userID, workflowID).Scan(&stepDataJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return map[string]json.RawMessage{}, nil
		}

		return nil, persistence.NewProgressError("StepData", userID, workflowID, err)
	}

	stepData := map[string]json.RawMessage{}

	err = json.Unmarshal(stepDataJSON, &stepData)
	if err != nil {
		return nil, persistence.NewProgressError("StepData", userID, workflowID, err)
	}

	return stepData, nil
}

// ListIdle returns incomplete records whose last update is older than the cutoff.
func (r *ProgressRepository) ListIdle(ctx context.Context, cutoff time.Time) ([]*models.ProgressRecord, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM progress_records
		WHERE is_complete = FALSE AND updated_at < $1
		ORDER BY updated_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query idle progress records: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	records := make([]*models.ProgressRecord, 0)

	for rows.Next() {
		record, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress record: %w", err)
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating progress records: %w", err)
	}

	return records, nil
}

func scanProgress(row rowScanner) (*models.ProgressRecord, error) {
	var (
		record        models.ProgressRecord
		completedJSON []byte
		stepDataJSON  []byte
	)

	err := row.Scan(
		&record.UserID,
		&record.WorkflowID,
		&record.CurrentStep,
		&completedJSON,
		&stepDataJSON,
		&record.IsComplete,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(completedJSON, &record.CompletedSteps)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal completed steps: %w", err)
	}

	err = json.Unmarshal(stepDataJSON, &record.StepData)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal step data: %w", err)
	}

	return &record, nil
}
