package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"sync"
	"time"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

// ProgressRepository handles progress-record file operations. A mutex
// serializes read-modify-write cycles so per-key payload upserts never
// disturb previously stored keys.
type ProgressRepository struct {
	root string
	mu   sync.Mutex
}

// NewProgressRepository creates a new progress repository.
func NewProgressRepository(root string) *ProgressRepository {
	return &ProgressRepository{root: root}
}

func (pr *ProgressRepository) dir() string {
	return path.Join(pr.root, "progress")
}

func (pr *ProgressRepository) filePath(userID, workflowID string) string {
	return path.Join(pr.dir(), url.PathEscape(userID)+"__"+url.PathEscape(workflowID)+".json")
}

// Get returns the progress record for (userID, workflowID), or
// persistence.ErrProgressNotFound.
func (pr *ProgressRepository) Get(_ context.Context, userID, workflowID string) (*models.ProgressRecord, error) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	return pr.read(userID, workflowID)
}

func (pr *ProgressRepository) read(userID, workflowID string) (*models.ProgressRecord, error) {
	data, err := os.ReadFile(pr.filePath(userID, workflowID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewProgressError("Get", userID, workflowID, persistence.ErrProgressNotFound)
		}

		return nil, persistence.NewProgressError("Get", userID, workflowID, err)
	}

	var record models.ProgressRecord

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, persistence.NewProgressError("Get", userID, workflowID, err)
	}

	return &record, nil
}

// Save upserts the full progress record.
func (pr *ProgressRepository) Save(_ context.Context, record *models.ProgressRecord) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	return pr.write(record)
}

func (pr *ProgressRepository) write(record *models.ProgressRecord) error {
	// The engine stamps UpdatedAt itself; only fill it for callers that
	// did not.
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}

	err := os.MkdirAll(pr.dir(), 0o755)
	if err != nil {
		return persistence.NewProgressError("Save", record.UserID, record.WorkflowID, err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return persistence.NewProgressError("Save", record.UserID, record.WorkflowID, err)
	}

	err = os.WriteFile(pr.filePath(record.UserID, record.WorkflowID), data, 0o644)
	if err != nil {
		return persistence.NewProgressError("Save", record.UserID, record.WorkflowID, err)
	}

	return nil
}

// Delete removes the progress record. Deleting a missing record is not an error.
func (pr *ProgressRepository) Delete(_ context.Context, userID, workflowID string) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	err := os.Remove(pr.filePath(userID, workflowID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return persistence.NewProgressError("Delete", userID, workflowID, err)
	}

	return nil
}

// SaveStepData upserts a single step payload by stable step ID. The record
// is created with defaults if the user has not entered the workflow yet.
func (pr *ProgressRepository) SaveStepData(_ context.Context, userID, workflowID, stepID string, payload json.RawMessage) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	record, err := pr.read(userID, workflowID)
	if err != nil {
		if !persistence.IsProgressNotFound(err) {
			return persistence.NewStepDataError("SaveStepData", userID, workflowID, stepID, err)
		}

		record = models.NewProgressRecord(userID, workflowID)
	}

	if record.StepData == nil {
		record.StepData = map[string]json.RawMessage{}
	}

	record.StepData[stepID] = payload
	record.UpdatedAt = time.Now().UTC()

	err = pr.write(record)
	if err != nil {
		return persistence.NewStepDataError("SaveStepData", userID, workflowID, stepID, err)
	}

	return nil
}

// StepData returns all saved payloads, empty when nothing is saved yet.
func (pr *ProgressRepository) StepData(_ context.Context, userID, workflowID string) (map[string]json.RawMessage, error) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	record, err := pr.read(userID, workflowID)
	if err != nil {
		if persistence.IsProgressNotFound(err) {
			return map[string]json.RawMessage{}, nil
		}

		return nil, err
	}

	if record.StepData == nil {
		return map[string]json.RawMessage{}, nil
	}

	return record.StepData, nil
}

// ListIdle returns incomplete records whose last update is older than the cutoff.
func (pr *ProgressRepository) ListIdle(_ context.Context, cutoff time.Time) ([]*models.ProgressRecord, error) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if _, err := os.Stat(pr.dir()); os.IsNotExist(err) {
		return []*models.ProgressRecord{}, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(pr.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list progress files: %w", err)
	}

	idle := make([]*models.ProgressRecord, 0)

	for _, file := range jsonFiles {
		data, err := os.ReadFile(path.Join(pr.dir(), file))
		if err != nil {
			return nil, fmt.Errorf("failed to read progress file %s: %w", file, err)
		}

		var record models.ProgressRecord

		err = json.Unmarshal(data, &record)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal progress file %s: %w", file, err)
		}

		if !record.IsComplete && record.UpdatedAt.Before(cutoff) {
			idle = append(idle, &record)
		}
	}

	return idle, nil
}
