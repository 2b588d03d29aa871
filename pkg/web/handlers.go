package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/stepline/stepline/pkg/registry"
	"github.com/stepline/stepline/pkg/services"
)

type APIHandlers struct {
	workflowService     *services.Workflow
	onboardingService   *services.Onboarding
	entitlementsService *services.Entitlements
	validator           *validator.Validate
	registry            *registry.Registry
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	onboardingService *services.Onboarding,
	entitlementsService *services.Entitlements,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		workflowService:     workflowService,
		onboardingService:   onboardingService,
		entitlementsService: entitlementsService,
		validator:           validator,
		registry:            registry,
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.ListWorkflows(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.GetWorkflow(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.CreateWorkflow(c.Context(), services.CreateWorkflowRequest{
		Name:        req.Name,
		Description: req.Description,
		Owner:       req.Owner,
		Steps:       req.Steps,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflowService.UpdateWorkflow(c.Context(), id, services.UpdateWorkflowRequest{
		Name:        req.Name,
		Description: req.Description,
		Steps:       req.Steps,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.workflowService.DeleteWorkflow(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PublishWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	published, err := h.workflowService.PublishWorkflow(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

// GetOnboarding returns the caller's progress snapshot, creating the
// record on first entry.
func (h *APIHandlers) GetOnboarding(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	snapshot, err := h.onboardingService.Enter(c.Context(), requestUserID(c), workflowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(snapshot)
}

// AdvanceOnboarding confirms the current step. The body is optional; when
// present its payload is persisted under the current step before the
// pointer moves.
func (h *APIHandlers) AdvanceOnboarding(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req AdvanceRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	snapshot, err := h.onboardingService.Advance(c.Context(), requestUserID(c), workflowID, req.Payload)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(snapshot)
}

func (h *APIHandlers) RetreatOnboarding(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	snapshot, err := h.onboardingService.Retreat(c.Context(), requestUserID(c), workflowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(snapshot)
}

// AutosaveStep accepts a partial payload for a step; the write is
// debounced server-side, so acceptance is not persistence.
func (h *APIHandlers) AutosaveStep(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")
	stepID := c.Params("stepId")

	if workflowID == "" || stepID == "" {
		return badRequest(c, "Workflow ID and step ID are required")
	}

	var req AutosaveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if len(req.Payload) == 0 {
		return badRequest(c, "Payload is required")
	}

	if err := h.onboardingService.Autosave(c.Context(), requestUserID(c), workflowID, stepID, req.Payload); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) ResetOnboarding(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.onboardingService.Reset(c.Context(), requestUserID(c), workflowID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) RecordOrder(c fiber.Ctx) error {
	var req RecordOrderRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	order, err := h.entitlementsService.RecordPaidOrder(c.Context(), requestUserID(c), req.WorkflowID, req.OrderRef)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *APIHandlers) RedeemGiftCode(c fiber.Ctx) error {
	var req RedeemGiftCodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	redemption, err := h.entitlementsService.RedeemGiftCode(c.Context(), requestUserID(c), req.WorkflowID, req.Code)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(redemption)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Stepline API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Stepline API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
