// Package form provides the generic form-entry step renderer used by
// identity capture, trust naming, and account setup steps.
package form

import (
	"context"
	"encoding/json"

	"github.com/stepline/stepline/pkg/protocol"
)

// Renderer renders a data-entry form step. Previously saved data is
// echoed back so the shell can pre-fill fields on revisit.
type Renderer struct {
	stepID string
	fields []string
}

// NewRenderer creates a form renderer for the given step ID with the
// named fields.
func NewRenderer(stepID string, fields []string) *Renderer {
	return &Renderer{stepID: stepID, fields: fields}
}

func (r *Renderer) ID() string {
	return r.stepID
}

func (r *Renderer) Render(_ context.Context, req protocol.RenderRequest) (*protocol.RenderResult, error) {
	saved := map[string]any{}

	if len(req.Data) > 0 {
		err := json.Unmarshal(req.Data, &saved)
		if err != nil {
			return nil, err
		}
	}

	return &protocol.RenderResult{
		Kind: "form",
		View: map[string]any{
			"title":  req.Step.DisplayName,
			"fields": r.fields,
			"saved":  saved,
		},
	}, nil
}
