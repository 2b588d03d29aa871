// Package protocol defines the contracts between the workflow engine and
// step implementations.
package protocol

import (
	"context"
	"encoding/json"

	"github.com/stepline/stepline/pkg/models"
)

// RenderRequest carries everything a step renderer needs to produce its view.
type RenderRequest struct {
	Step models.StepDefinition
	// Data is the previously saved payload for this step, nil on first visit.
	Data json.RawMessage
	// UserID and WorkflowID identify the session being rendered.
	UserID     string
	WorkflowID string
}

// RenderResult is the view model handed to the UI shell. The engine never
// inspects View; it is opaque step-owned content.
type RenderResult struct {
	Kind string         `json:"kind"`
	View map[string]any `json:"view"`
}

// StepRenderer is the contract each step implementation satisfies. The
// engine is agnostic to what a step does internally (form entry, file
// upload, external redirect) as long as the shell eventually advances.
type StepRenderer interface {
	ID() string
	Render(ctx context.Context, req RenderRequest) (*RenderResult, error)
}
