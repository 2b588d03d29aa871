// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrProgressNotFound indicates no progress record exists for the (user, workflow) pair.
	ErrProgressNotFound = errors.New("progress record not found")

	// ErrOrderNotFound indicates no paid order exists for the (user, workflow) pair.
	ErrOrderNotFound = errors.New("order not found")

	// ErrRedemptionNotFound indicates no gift-code redemption exists for the lookup.
	ErrRedemptionNotFound = errors.New("gift redemption not found")

	// ErrCodeAlreadyRedeemed indicates a gift code has already been bound to a user.
	ErrCodeAlreadyRedeemed = errors.New("gift code already redeemed")
)

// ProgressError wraps progress-record errors with additional context.
type ProgressError struct {
	Op         string // Operation being performed (e.g., "Get", "Save", "SaveStepData")
	UserID     string
	WorkflowID string
	StepID     string // Step ID if applicable
	Err        error
}

func (e *ProgressError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("%s operation failed for step %s of user %s in workflow %s: %v", e.Op, e.StepID, e.UserID, e.WorkflowID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for user %s in workflow %s: %v", e.Op, e.UserID, e.WorkflowID, e.Err)
}

func (e *ProgressError) Unwrap() error {
	return e.Err
}

func (e *ProgressError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewProgressError creates a new progress error with context.
func NewProgressError(op, userID, workflowID string, err error) *ProgressError {
	return &ProgressError{
		Op:         op,
		UserID:     userID,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// NewStepDataError creates a new progress error scoped to one step payload.
func NewStepDataError(op, userID, workflowID, stepID string, err error) *ProgressError {
	return &ProgressError{
		Op:         op,
		UserID:     userID,
		WorkflowID: workflowID,
		StepID:     stepID,
		Err:        err,
	}
}

// EntitlementError wraps entitlement errors with additional context.
type EntitlementError struct {
	Op         string
	UserID     string
	WorkflowID string
	Err        error
}

func (e *EntitlementError) Error() string {
	return fmt.Sprintf("%s operation failed for user %s in workflow %s: %v", e.Op, e.UserID, e.WorkflowID, e.Err)
}

func (e *EntitlementError) Unwrap() error {
	return e.Err
}

func (e *EntitlementError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsProgressNotFound checks if an error indicates a progress record was not found.
func IsProgressNotFound(err error) bool {
	return errors.Is(err, ErrProgressNotFound)
}

// IsOrderNotFound checks if an error indicates no order exists.
func IsOrderNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}

// IsRedemptionNotFound checks if an error indicates no redemption exists.
func IsRedemptionNotFound(err error) bool {
	return errors.Is(err, ErrRedemptionNotFound)
}

// IsCodeAlreadyRedeemed checks if an error indicates a gift code conflict.
func IsCodeAlreadyRedeemed(err error) bool {
	return errors.Is(err, ErrCodeAlreadyRedeemed)
}
