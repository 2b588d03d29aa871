package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

// EntitlementRepository stores orders and gift redemptions. A redemption
// is written with SETNX so a code can only ever bind to one user.
type EntitlementRepository struct {
	client redis.UniversalClient
}

// NewEntitlementRepository creates a new entitlement repository.
func NewEntitlementRepository(client redis.UniversalClient) *EntitlementRepository {
	return &EntitlementRepository{client: client}
}

func paidOrderKey(userID, workflowID string) string {
	return keyPrefix + ":order:paid:" + userID + ":" + workflowID
}

func redemptionKey(code string) string {
	return keyPrefix + ":redemption:" + code
}

func redemptionByUserKey(userID, workflowID string) string {
	return keyPrefix + ":redemptionby:" + userID + ":" + workflowID
}

// PaidOrder returns the paid order for (userID, workflowID), or
// persistence.ErrOrderNotFound.
func (er *EntitlementRepository) PaidOrder(ctx context.Context, userID, workflowID string) (*models.Order, error) {
	data, err := er.client.Get(ctx, paidOrderKey(userID, workflowID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.ErrOrderNotFound
		}

		return nil, fmt.Errorf("failed to get paid order: %w", err)
	}

	var order models.Order

	err = json.Unmarshal(data, &order)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal paid order: %w", err)
	}

	return &order, nil
}

// SaveOrder upserts an order. Only settled orders are indexed for the
// access gate lookup.
func (er *EntitlementRepository) SaveOrder(ctx context.Context, order *models.Order) error {
	now := time.Now().UTC()

	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}

	order.UpdatedAt = now

	if order.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate order ID: %w", err)
		}

		order.ID = id.String()
	}

	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order %s: %w", order.ID, err)
	}

	err = er.client.Set(ctx, keyPrefix+":order:"+order.ID, data, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to save order %s: %w", order.ID, err)
	}

	if order.Settled() {
		err = er.client.Set(ctx, paidOrderKey(order.UserID, order.WorkflowID), data, 0).Err()
		if err != nil {
			return fmt.Errorf("failed to index paid order %s: %w", order.ID, err)
		}
	}

	return nil
}

// Redemption returns the redemption made by userID for workflowID, or
// persistence.ErrRedemptionNotFound.
func (er *EntitlementRepository) Redemption(ctx context.Context, userID, workflowID string) (*models.GiftRedemption, error) {
	code, err := er.client.Get(ctx, redemptionByUserKey(userID, workflowID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.ErrRedemptionNotFound
		}

		return nil, fmt.Errorf("failed to get redemption index: %w", err)
	}

	return er.RedemptionByCode(ctx, code)
}

// RedemptionByCode returns the redemption bound to a code, or
// persistence.ErrRedemptionNotFound when the code is unredeemed.
func (er *EntitlementRepository) RedemptionByCode(ctx context.Context, code string) (*models.GiftRedemption, error) {
	data, err := er.client.Get(ctx, redemptionKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.ErrRedemptionNotFound
		}

		return nil, fmt.Errorf("failed to get redemption %s: %w", code, err)
	}

	var redemption models.GiftRedemption

	err = json.Unmarshal(data, &redemption)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal redemption %s: %w", code, err)
	}

	return &redemption, nil
}

// SaveRedemption binds a code to a user. SETNX makes a second redemption
// fail with persistence.ErrCodeAlreadyRedeemed.
func (er *EntitlementRepository) SaveRedemption(ctx context.Context, redemption *models.GiftRedemption) error {
	if redemption.RedeemedAt.IsZero() {
		redemption.RedeemedAt = time.Now().UTC()
	}

	data, err := json.Marshal(redemption)
	if err != nil {
		return fmt.Errorf("failed to marshal redemption %s: %w", redemption.Code, err)
	}

	set, err := er.client.SetNX(ctx, redemptionKey(redemption.Code), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to save redemption %s: %w", redemption.Code, err)
	}

	if !set {
		return persistence.ErrCodeAlreadyRedeemed
	}

	err = er.client.Set(ctx, redemptionByUserKey(redemption.RedeemedBy, redemption.WorkflowID), redemption.Code, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to index redemption %s: %w", redemption.Code, err)
	}

	return nil
}
