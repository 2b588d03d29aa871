package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

const uniqueViolation = "23505"

// EntitlementRepository handles order and gift-redemption database operations.
type EntitlementRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEntitlementRepository creates a new entitlement repository.
func NewEntitlementRepository(db *sql.DB, logger *slog.Logger) *EntitlementRepository {
	return &EntitlementRepository{db: db, logger: logger}
}

// PaidOrder returns the most recent paid order for (userID, workflowID),
// or persistence.ErrOrderNotFound.
func (r *EntitlementRepository) PaidOrder(ctx context.Context, userID, workflowID string) (*models.Order, error) {
	query := `
		SELECT id, user_id, workflow_id, status, order_ref, created_at, updated_at
		FROM orders
		WHERE user_id = $1 AND workflow_id = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	var (
		order    models.Order
		status   string
		orderRef sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, userID, workflowID, string(models.OrderStatusPaid)).Scan(
		&order.ID,
		&order.UserID,
		&order.WorkflowID,
		&status,
		&orderRef,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrOrderNotFound
		}

		return nil, fmt.Errorf("failed to query paid order: %w", err)
	}

	order.Status = models.OrderStatus(status)
	order.OrderRef = orderRef.String

	return &order, nil
}

// SaveOrder upserts an order, generating an ID and timestamps as needed.
func (r *EntitlementRepository) SaveOrder(ctx context.Context, order *models.Order) error {
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

	query := `
		INSERT INTO orders (id, user_id, workflow_id, status, order_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			order_ref = EXCLUDED.order_ref,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.UserID,
		order.WorkflowID,
		string(order.Status),
		order.OrderRef,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save order %s: %w", order.ID, err)
	}

	return nil
}

// Redemption returns the redemption made by userID for workflowID, or
// persistence.ErrRedemptionNotFound.
func (r *EntitlementRepository) Redemption(ctx context.Context, userID, workflowID string) (*models.GiftRedemption, error) {
	query := `
		SELECT code, redeemed_by, workflow_id, redeemed_at
		FROM gift_redemptions
		WHERE redeemed_by = $1 AND workflow_id = $2
		LIMIT 1
	`

	return r.scanRedemption(r.db.QueryRowContext(ctx, query, userID, workflowID))
}

// RedemptionByCode returns the redemption bound to a code, or
// persistence.ErrRedemptionNotFound when the code is unredeemed.
func (r *EntitlementRepository) RedemptionByCode(ctx context.Context, code string) (*models.GiftRedemption, error) {
	query := `
		SELECT code, redeemed_by, workflow_id, redeemed_at
		FROM gift_redemptions
		WHERE code = $1
	`

	return r.scanRedemption(r.db.QueryRowContext(ctx, query, code))
}

// SaveRedemption binds a code to a user. The primary key on code makes a
// second redemption a unique violation, reported as ErrCodeAlreadyRedeemed.
func (r *EntitlementRepository) SaveRedemption(ctx context.Context, redemption *models.GiftRedemption) error {
	if redemption.RedeemedAt.IsZero() {
		redemption.RedeemedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO gift_redemptions (code, redeemed_by, workflow_id, redeemed_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query,
		redemption.Code,
		redemption.RedeemedBy,
		redemption.WorkflowID,
		redemption.RedeemedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.ErrCodeAlreadyRedeemed
		}

		return fmt.Errorf("failed to save redemption %s: %w", redemption.Code, err)
	}

	return nil
}

func (r *EntitlementRepository) scanRedemption(row *sql.Row) (*models.GiftRedemption, error) {
	var redemption models.GiftRedemption

	err := row.Scan(
		&redemption.Code,
		&redemption.RedeemedBy,
		&redemption.WorkflowID,
		&redemption.RedeemedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRedemptionNotFound
		}

		return nil, fmt.Errorf("failed to scan redemption: %w", err)
	}

	return &redemption, nil
}
