package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

// Entitlements records the two ways a user earns workflow access: settled
// payment orders and single-use gift codes.
type Entitlements struct {
	logger      *slog.Logger
	persistence persistence.Persistence
}

// NewEntitlements creates a new entitlements service.
func NewEntitlements(logger *slog.Logger, persist persistence.Persistence) *Entitlements {
	return &Entitlements{
		logger:      logger.With("module", "entitlements_service"),
		persistence: persist,
	}
}

// RecordPaidOrder stores a settled order for (user, workflow). orderRef is
// the payment provider's reference, kept for reconciliation.
func (e *Entitlements) RecordPaidOrder(ctx context.Context, userID, workflowID, orderRef string) (*models.Order, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}

	if workflowID == "" {
		return nil, fmt.Errorf("%w: workflow id is required", ErrInvalidRequest)
	}

	now := time.Now().UTC()
	order := &models.Order{
		ID:         uuid.NewString(),
		UserID:     userID,
		WorkflowID: workflowID,
		Status:     models.OrderStatusPaid,
		OrderRef:   orderRef,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := e.persistence.EntitlementRepository().SaveOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to record order: %w", err)
	}

	e.logger.InfoContext(ctx, "paid order recorded",
		"user_id", userID, "workflow_id", workflowID, "order_ref", orderRef)

	return order, nil
}

// RedeemGiftCode binds a gift code to (user, workflow). A code is
// single-use: the first redemption wins and any later attempt, by any
// user, is a conflict.
func (e *Entitlements) RedeemGiftCode(ctx context.Context, userID, workflowID, code string) (*models.GiftRedemption, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}

	if code == "" {
		return nil, ErrCodeRequired
	}

	redemption := &models.GiftRedemption{
		Code:       code,
		RedeemedBy: userID,
		WorkflowID: workflowID,
		RedeemedAt: time.Now().UTC(),
	}

	err := e.persistence.EntitlementRepository().SaveRedemption(ctx, redemption)

	switch {
	case err == nil:
	case persistence.IsCodeAlreadyRedeemed(err):
		return nil, ErrCodeAlreadyRedeemed
	default:
		return nil, fmt.Errorf("failed to redeem gift code: %w", err)
	}

	e.logger.InfoContext(ctx, "gift code redeemed", "user_id", userID, "workflow_id", workflowID)

	return redemption, nil
}
