package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stepline/stepline/pkg/eventbus"
	"github.com/stepline/stepline/pkg/events"
	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
	"github.com/stepline/stepline/pkg/registry"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

// Workflow manages workflow configuration: the CRUD and publish lifecycle
// of the step sequences users onboard through.
type Workflow struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	publisher   eventbus.EventPublisher
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(
	logger *slog.Logger,
	persistence persistence.Persistence,
	reg *registry.Registry,
	publisher eventbus.EventPublisher,
) *Workflow {
	return &Workflow{
		logger:      logger.With("module", "workflow_service"),
		persistence: persistence,
		registry:    reg,
		publisher:   publisher,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflows retrieves all workflows.
func (w *Workflow) ListWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// GetWorkflow retrieves one workflow by id.
func (w *Workflow) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// CreateWorkflowRequest carries the fields a client may set on creation.
type CreateWorkflowRequest struct {
	Name        string                   `validate:"required,min=3"`
	Description string                   `validate:"required"`
	Owner       string                   `validate:"required"`
	Steps       []*models.StepDefinition `validate:"dive"`
	Metadata    map[string]any
}

// CreateWorkflow creates a workflow in draft status.
func (w *Workflow) CreateWorkflow(ctx context.Context, req CreateWorkflowRequest) (*models.Workflow, error) {
	if req.Name == "" {
		return nil, ErrWorkflowNameRequired
	}

	if err := validateStepIDs(req.Steps); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	workflow := &models.Workflow{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Status:      models.WorkflowStatusDraft,
		Steps:       req.Steps,
		Metadata:    req.Metadata,
		Owner:       req.Owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "workflow created", "workflow_id", workflow.ID, "name", workflow.Name)

	return workflow, nil
}

// UpdateWorkflowRequest carries a partial update; nil fields are left
// untouched.
type UpdateWorkflowRequest struct {
	Name        *string
	Description *string
	Steps       []*models.StepDefinition
	Metadata    map[string]any
}

// UpdateWorkflow applies a partial update to a draft workflow. Published
// workflows are immutable: changing live step sequences would reinterpret
// in-flight progress records.
func (w *Workflow) UpdateWorkflow(ctx context.Context, id string, req UpdateWorkflowRequest) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusPublished {
		return nil, ErrCannotModifyPublished
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, ErrWorkflowNameRequired
		}

		workflow.Name = *req.Name
	}

	if req.Description != nil {
		workflow.Description = *req.Description
	}

	if req.Steps != nil {
		if err := validateStepIDs(req.Steps); err != nil {
			return nil, err
		}

		workflow.Steps = req.Steps
	}

	if req.Metadata != nil {
		workflow.Metadata = req.Metadata
	}

	workflow.UpdatedAt = time.Now().UTC()

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// DeleteWorkflow soft-deletes a workflow.
func (w *Workflow) DeleteWorkflow(ctx context.Context, id string) error {
	return w.persistence.WorkflowRepository().Delete(ctx, id)
}

// PublishWorkflow moves a draft workflow to published, opening it for
// onboarding entry. Publication fails when the workflow has no steps,
// duplicate step ids, or steps with no registered renderer.
func (w *Workflow) PublishWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusPublished {
		return nil, ErrCannotModifyPublished
	}

	if workflow.Name == "" {
		return nil, ErrWorkflowNameRequired
	}

	if len(workflow.Steps) == 0 {
		return nil, ErrStepsRequired
	}

	if err := validateStepIDs(workflow.Steps); err != nil {
		return nil, err
	}

	if err := w.registry.Validate(workflow); err != nil {
		return nil, NewValidationError("publish_workflow", "unregistered_steps", err.Error(), ErrInvalidRequest)
	}

	now := time.Now().UTC()
	workflow.Status = models.WorkflowStatusPublished
	workflow.PublishedAt = &now
	workflow.UpdatedAt = now

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to publish workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "workflow published", "workflow_id", workflow.ID, "steps", len(workflow.Steps))

	if w.publisher != nil {
		event := events.WorkflowPublished{
			BaseEvent: events.BaseEvent{
				ID:         uuid.NewString(),
				Type:       events.WorkflowPublishedEvent,
				Timestamp:  now,
				WorkflowID: workflow.ID,
			},
			StepCount: len(workflow.Steps),
		}
		if err := w.publisher.Publish(ctx, workflow.ID, event); err != nil {
			w.logger.WarnContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
		}
	}

	return workflow, nil
}

func validateStepIDs(steps []*models.StepDefinition) error {
	seen := make(map[string]struct{}, len(steps))

	for _, step := range steps {
		if step.ID == "" {
			return fmt.Errorf("%w: step %q has no id", ErrInvalidRequest, step.DisplayName)
		}

		if _, dup := seen[step.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateStepID, step.ID)
		}

		seen[step.ID] = struct{}{}
	}

	return nil
}
