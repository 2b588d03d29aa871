// Package persistence provides the data storage abstraction layer for
// workflows, progress records, and entitlements.
package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stepline/stepline/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ProgressRepository() ProgressRepository
	EntitlementRepository() EntitlementRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow configuration: the ordered step
// definitions per workflow id.
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// ProgressRepository stores per-user traversal state and step payloads.
//
// SaveStepData upserts a single payload by (user, workflow, stepID); the
// last write for a key wins and a failed write never disturbs previously
// stored keys. StepData returns an empty map, not an error, when nothing
// has been saved yet.
type ProgressRepository interface {
	Get(ctx context.Context, userID, workflowID string) (*models.ProgressRecord, error)
	Save(ctx context.Context, record *models.ProgressRecord) error
	Delete(ctx context.Context, userID, workflowID string) error

	SaveStepData(ctx context.Context, userID, workflowID, stepID string, payload json.RawMessage) error
	StepData(ctx context.Context, userID, workflowID string) (map[string]json.RawMessage, error)

	// ListIdle returns incomplete records not updated since the cutoff.
	ListIdle(ctx context.Context, cutoff time.Time) ([]*models.ProgressRecord, error)
}

// EntitlementRepository stores payment orders and gift-code redemptions.
type EntitlementRepository interface {
	PaidOrder(ctx context.Context, userID, workflowID string) (*models.Order, error)
	SaveOrder(ctx context.Context, order *models.Order) error

	Redemption(ctx context.Context, userID, workflowID string) (*models.GiftRedemption, error)
	RedemptionByCode(ctx context.Context, code string) (*models.GiftRedemption, error)
	SaveRedemption(ctx context.Context, redemption *models.GiftRedemption) error
}
