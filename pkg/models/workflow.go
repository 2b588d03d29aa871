// Package models defines the core domain models for guided onboarding workflows.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "draft"     // Editable, not open for onboarding
	WorkflowStatusPublished WorkflowStatus = "published" // Open for onboarding entry
	WorkflowStatusArchived  WorkflowStatus = "archived"  // Historical, closed to new entries
)

// Workflow is one product offering: an ordered sequence of onboarding steps
// a user completes to finish the offering.
type Workflow struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"        validate:"required,min=3"`
	Description string            `json:"description" validate:"required"`
	Status      WorkflowStatus    `json:"status"      validate:"required"`
	Steps       []*StepDefinition `json:"steps"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	Owner       string            `json:"owner"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	DeletedAt   *time.Time        `json:"deleted_at,omitempty"`
}

// OrderedSteps returns the workflow's steps sorted by traversal order.
func (w *Workflow) OrderedSteps() []*StepDefinition {
	return SortSteps(w.Steps)
}

// StepByID returns the step with the given stable identifier, or nil.
func (w *Workflow) StepByID(stepID string) *StepDefinition {
	for _, step := range w.Steps {
		if step.ID == stepID {
			return step
		}
	}

	return nil
}
