// Package payment provides the payment step renderer. The renderer only
// emits a redirect target; provider integration happens outside the core.
package payment

import (
	"context"

	"github.com/stepline/stepline/pkg/access"
	"github.com/stepline/stepline/pkg/protocol"
)

// Renderer renders the payment step. It re-checks the access gate
// defensively: a user who already holds an entitlement (payment settled
// in another tab, or a redeemed gift code) sees a settled view instead of
// a second checkout redirect.
type Renderer struct {
	stepID      string
	checkoutURL string
	gate        *access.Gate
}

func NewRenderer(stepID, checkoutURL string, gate *access.Gate) *Renderer {
	return &Renderer{
		stepID:      stepID,
		checkoutURL: checkoutURL,
		gate:        gate,
	}
}

func (r *Renderer) ID() string {
	return r.stepID
}

func (r *Renderer) Render(ctx context.Context, req protocol.RenderRequest) (*protocol.RenderResult, error) {
	settled := false

	if r.gate != nil {
		ok, err := r.gate.HasAccess(ctx, req.UserID, req.WorkflowID)
		if err != nil {
			return nil, err
		}

		settled = ok
	}

	view := map[string]any{
		"title":   req.Step.DisplayName,
		"settled": settled,
	}

	if !settled {
		view["checkout_url"] = r.checkoutURL
	}

	return &protocol.RenderResult{
		Kind: "payment",
		View: view,
	}, nil
}
