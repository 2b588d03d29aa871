// Package web provides HTTP handlers and request/response types for the
// onboarding API.
package web

import (
	"encoding/json"

	"github.com/stepline/stepline/pkg/models"
)

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string                   `json:"name"               validate:"required,min=3"`
	Description string                   `json:"description"        validate:"required"`
	Owner       string                   `json:"owner"              validate:"required"`
	Steps       []*models.StepDefinition `json:"steps"              validate:"dive"`
	Metadata    map[string]any           `json:"metadata,omitempty"`
}

// UpdateWorkflowRequest represents the request body for updating an existing
// workflow. All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name        *string                  `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string                  `json:"description,omitempty"`
	Steps       []*models.StepDefinition `json:"steps,omitempty"       validate:"omitempty,dive"`
	Metadata    map[string]any           `json:"metadata,omitempty"`
}

// AdvanceRequest represents the optional request body when confirming the
// current step. A missing body confirms without a payload.
type AdvanceRequest struct {
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AutosaveRequest represents the partial payload pushed by an editing client.
type AutosaveRequest struct {
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// RecordOrderRequest represents a settled payment notification.
type RecordOrderRequest struct {
	WorkflowID string `json:"workflow_id" validate:"required"`
	OrderRef   string `json:"order_ref"   validate:"required"`
}

// RedeemGiftCodeRequest represents a gift code redemption attempt.
type RedeemGiftCodeRequest struct {
	WorkflowID string `json:"workflow_id" validate:"required"`
	Code       string `json:"code"        validate:"required"`
}
