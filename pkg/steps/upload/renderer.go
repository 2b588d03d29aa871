// Package upload provides the document-upload step renderer used by the
// ordination certificate step.
package upload

import (
	"context"
	"encoding/json"

	"github.com/stepline/stepline/pkg/protocol"
)

// Renderer renders a file-upload step. The saved payload holds upload
// state written by the shell (storage path, confirmation); the state is
// "pending" until the backing write is confirmed, never conflated with
// "confirmed".
type Renderer struct {
	stepID       string
	acceptedMIME []string
}

func NewRenderer(stepID string, acceptedMIME []string) *Renderer {
	return &Renderer{stepID: stepID, acceptedMIME: acceptedMIME}
}

func (r *Renderer) ID() string {
	return r.stepID
}

func (r *Renderer) Render(_ context.Context, req protocol.RenderRequest) (*protocol.RenderResult, error) {
	state := map[string]any{"status": "empty"}

	if len(req.Data) > 0 {
		err := json.Unmarshal(req.Data, &state)
		if err != nil {
			return nil, err
		}
	}

	return &protocol.RenderResult{
		Kind: "upload",
		View: map[string]any{
			"title":    req.Step.DisplayName,
			"accepted": r.acceptedMIME,
			"state":    state,
		},
	}, nil
}
