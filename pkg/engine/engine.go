// Package engine implements the workflow traversal state machine: one
// Session per (user, workflow) pair, advancing and retreating a 1-based
// step pointer with confirm-then-transition persistence.
package engine

import (
	"context"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

// ResolveSteps loads a workflow and returns its steps in traversal order:
// Order ascending, ties broken by ID. A workflow with zero steps is a
// configuration error, not an empty traversal.
func ResolveSteps(ctx context.Context, workflows persistence.WorkflowRepository, workflowID string) ([]*models.StepDefinition, error) {
	workflow, err := workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if len(workflow.Steps) == 0 {
		return nil, ErrNoSteps
	}

	return models.SortSteps(workflow.Steps), nil
}
