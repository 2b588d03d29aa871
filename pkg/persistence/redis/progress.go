package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

// ProgressRepository stores traversal state as a JSON value and step
// payloads in a per-(user, workflow) hash keyed by stable step ID, so a
// single-key upsert never touches other keys.
type ProgressRepository struct {
	client redis.UniversalClient
}

// NewProgressRepository creates a new progress repository.
func NewProgressRepository(client redis.UniversalClient) *ProgressRepository {
	return &ProgressRepository{client: client}
}

func progressKey(userID, workflowID string) string {
	return keyPrefix + ":progress:" + userID + ":" + workflowID
}

func stepDataKey(userID, workflowID string) string {
	return keyPrefix + ":stepdata:" + userID + ":" + workflowID
}

// Get returns the progress record with its step data merged in, or
// persistence.ErrProgressNotFound.
func (pr *ProgressRepository) Get(ctx context.Context, userID, workflowID string) (*models.ProgressRecord, error) {
	data, err := pr.client.Get(ctx, progressKey(userID, workflowID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewProgressError("Get", userID, workflowID, persistence.ErrProgressNotFound)
		}

		return nil, persistence.NewProgressError("Get", userID, workflowID, err)
	}

	var record models.ProgressRecord

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, persistence.NewProgressError("Get", userID, workflowID, err)
	}

	stepData, err := pr.StepData(ctx, userID, workflowID)
	if err != nil {
		return nil, err
	}

	record.StepData = stepData

	return &record, nil
}

// Save upserts the full progress record: state value plus one hash field
// per step payload.
func (pr *ProgressRepository) Save(ctx context.Context, record *models.ProgressRecord) error {
	record.UpdatedAt = time.Now().UTC()

	state := *record
	state.StepData = nil

	data, err := json.Marshal(&state)
	if err != nil {
		return persistence.NewProgressError("Save", record.UserID, record.WorkflowID, err)
	}

	pipe := pr.client.TxPipeline()
	pipe.Set(ctx, progressKey(record.UserID, record.WorkflowID), data, 0)

	for stepID, payload := range record.StepData {
		pipe.HSet(ctx, stepDataKey(record.UserID, record.WorkflowID), stepID, string(payload))
	}

	_, err = pipe.Exec(ctx)
	if err != nil {
		return persistence.NewProgressError("Save", record.UserID, record.WorkflowID, err)
	}

	return nil
}

// Delete removes the record and its step data. Deleting a missing record
// is not an error.
func (pr *ProgressRepository) Delete(ctx context.Context, userID, workflowID string) error {
	err := pr.client.Del(ctx, progressKey(userID, workflowID), stepDataKey(userID, workflowID)).Err()
	if err != nil {
		return persistence.NewProgressError("Delete", userID, workflowID, err)
	}

	return nil
}

// SaveStepData upserts one step payload as a hash field. The record state
// value is created with defaults if the user has not entered the workflow yet.
func (pr *ProgressRepository) SaveStepData(ctx context.Context, userID, workflowID, stepID string, payload json.RawMessage) error {
	exists, err := pr.client.Exists(ctx, progressKey(userID, workflowID)).Result()
	if err != nil {
		return persistence.NewStepDataError("SaveStepData", userID, workflowID, stepID, err)
	}

	if exists == 0 {
		record := models.NewProgressRecord(userID, workflowID)
		record.StepData = nil

		data, err := json.Marshal(record)
		if err != nil {
			return persistence.NewStepDataError("SaveStepData", userID, workflowID, stepID, err)
		}

		err = pr.client.SetNX(ctx, progressKey(userID, workflowID), data, 0).Err()
		if err != nil {
			return persistence.NewStepDataError("SaveStepData", userID, workflowID, stepID, err)
		}
	}

	err = pr.client.HSet(ctx, stepDataKey(userID, workflowID), stepID, string(payload)).Err()
	if err != nil {
		return persistence.NewStepDataError("SaveStepData", userID, workflowID, stepID, err)
	}

	return nil
}

// StepData returns all saved payloads, empty when nothing is saved yet.
func (pr *ProgressRepository) StepData(ctx context.Context, userID, workflowID string) (map[string]json.RawMessage, error) {
	fields, err := pr.client.HGetAll(ctx, stepDataKey(userID, workflowID)).Result()
	if err != nil {
		return nil, persistence.NewProgressError("StepData", userID, workflowID, err)
	}

	stepData := make(map[string]json.RawMessage, len(fields))
	for stepID, payload := range fields {
		stepData[stepID] = json.RawMessage(payload)
	}

	return stepData, nil
}

// ListIdle scans progress keys for incomplete records older than the cutoff.
func (pr *ProgressRepository) ListIdle(ctx context.Context, cutoff time.Time) ([]*models.ProgressRecord, error) {
	idle := make([]*models.ProgressRecord, 0)

	iter := pr.client.Scan(ctx, 0, keyPrefix+":progress:*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := pr.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}

			return nil, fmt.Errorf("failed to get progress key %s: %w", iter.Val(), err)
		}

		var record models.ProgressRecord

		err = json.Unmarshal(data, &record)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal progress key %s: %w", iter.Val(), err)
		}

		if !record.IsComplete && record.UpdatedAt.Before(cutoff) {
			idle = append(idle, &record)
		}
	}

	err := iter.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to scan progress keys: %w", err)
	}

	return idle, nil
}
