// Package access implements the entitlement gate evaluated before
// workflow entry.
package access

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stepline/stepline/pkg/persistence"
)

// Gate answers whether a user holds a valid entitlement (settled payment
// or redeemed gift code) for a workflow. It is side-effect free and safe
// to call repeatedly; payment-related steps call it defensively in
// addition to the workflow-entry check.
type Gate struct {
	entitlements persistence.EntitlementRepository
	logger       *slog.Logger
}

// NewGate creates a new access gate.
func NewGate(entitlements persistence.EntitlementRepository, logger *slog.Logger) *Gate {
	return &Gate{
		entitlements: entitlements,
		logger:       logger.With("module", "access_gate"),
	}
}

// HasAccess checks, in order, a paid order then a gift-code redemption
// for (userID, workflowID). It returns true on the first match. A missing
// entitlement and an anonymous user are normal false outcomes, not
// errors; only store failures produce an error.
func (g *Gate) HasAccess(ctx context.Context, userID, workflowID string) (bool, error) {
	if userID == "" {
		return false, nil
	}

	_, err := g.entitlements.PaidOrder(ctx, userID, workflowID)
	if err == nil {
		return true, nil
	}

	if !persistence.IsOrderNotFound(err) {
		return false, fmt.Errorf("failed to check paid order: %w", err)
	}

	_, err = g.entitlements.Redemption(ctx, userID, workflowID)
	if err == nil {
		return true, nil
	}

	if !persistence.IsRedemptionNotFound(err) {
		return false, fmt.Errorf("failed to check gift redemption: %w", err)
	}

	g.logger.DebugContext(ctx, "no entitlement found", "user_id", userID, "workflow_id", workflowID)

	return false, nil
}
