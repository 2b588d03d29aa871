// Package services provides the application layer between transport
// handlers and the core engine, with standardized error classification.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrStepsRequired        = errors.New("workflow must have at least one step")
	ErrDuplicateStepID      = errors.New("workflow step ids must be unique")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")
	ErrUserRequired         = errors.New("user id is required")
	ErrCodeRequired         = errors.New("gift code is required")

	// Business logic conflicts (409 Conflict).
	ErrCannotModifyPublished = errors.New("cannot modify published workflow")
	ErrWorkflowNotPublished  = errors.New("workflow is not published")
	ErrCodeAlreadyRedeemed   = errors.New("gift code already redeemed")

	// Access denial (403 Forbidden).
	ErrAccessDenied = errors.New("no entitlement for workflow")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrStepsRequired) ||
		errors.Is(err, ErrDuplicateStepID) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrUserRequired) ||
		errors.Is(err, ErrCodeRequired)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrCannotModifyPublished) ||
		errors.Is(err, ErrWorkflowNotPublished) ||
		errors.Is(err, ErrCodeAlreadyRedeemed)
}

// IsAccessDenied checks if an error is an entitlement denial that should return HTTP 403.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
