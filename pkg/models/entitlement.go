package models

import "time"

// OrderStatus represents the settlement state of a payment order.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusRefunded OrderStatus = "refunded"
)

// Order is a payment entitlement: a paid-and-settled order for a
// (user, workflow) pair satisfies the access gate.
type Order struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"     validate:"required"`
	WorkflowID string      `json:"workflow_id" validate:"required"`
	Status     OrderStatus `json:"status"      validate:"required"`
	OrderRef   string      `json:"order_ref,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Settled reports whether the order satisfies the access gate.
func (o *Order) Settled() bool {
	return o.Status == OrderStatusPaid
}

// GiftRedemption is a gift-code entitlement. A code is single-use: the
// first redemption binds it to a user and workflow.
type GiftRedemption struct {
	Code       string    `json:"code"        validate:"required"`
	RedeemedBy string    `json:"redeemed_by" validate:"required"`
	WorkflowID string    `json:"workflow_id" validate:"required"`
	RedeemedAt time.Time `json:"redeemed_at"`
}
