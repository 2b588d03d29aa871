package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepline/stepline/pkg/access"
	"github.com/stepline/stepline/pkg/autosave"
	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence/file"
	"github.com/stepline/stepline/pkg/protocol"
	"github.com/stepline/stepline/pkg/registry"
	"github.com/stepline/stepline/pkg/services"
	"github.com/stepline/stepline/pkg/web"
)

type stubRenderer struct {
	id string
}

func (r stubRenderer) ID() string {
	return r.id
}

func (r stubRenderer) Render(_ context.Context, req protocol.RenderRequest) (*protocol.RenderResult, error) {
	return &protocol.RenderResult{Kind: "stub", View: map[string]any{"step": req.Step.ID}}, nil
}

type testAPI struct {
	app          *fiber.App
	workflows    *services.Workflow
	entitlements *services.Entitlements
}

func setupTestApp(t *testing.T) *testAPI {
	t.Helper()

	logger := slog.Default()
	persist := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(logger)
	reg.RegisterStep(stubRenderer{id: "profile"})
	reg.RegisterStep(stubRenderer{id: "review"})

	gate := access.NewGate(persist.EntitlementRepository(), logger)
	workflowService := services.NewWorkflow(logger, persist, reg, nil)
	onboardingService := services.NewOnboarding(
		logger, persist, reg, gate, nil, autosave.WithInterval(10*time.Millisecond),
	)
	entitlementsService := services.NewEntitlements(logger, persist)

	t.Cleanup(func() {
		_ = onboardingService.Close(context.Background())
	})

	handlers := web.NewAPIHandlers(
		workflowService, onboardingService, entitlementsService,
		validator.New(validator.WithRequiredStructEnabled()), reg,
	)

	app := fiber.New()

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/publish", handlers.PublishWorkflow)

	o := app.Group("/onboarding", web.RequireUser(web.HeaderAuthenticator))
	o.Get("/:workflowId", handlers.GetOnboarding)
	o.Post("/:workflowId/advance", handlers.AdvanceOnboarding)
	o.Post("/:workflowId/retreat", handlers.RetreatOnboarding)
	o.Put("/:workflowId/steps/:stepId", handlers.AutosaveStep)
	o.Post("/:workflowId/reset", handlers.ResetOnboarding)

	e := app.Group("/entitlements", web.RequireUser(web.HeaderAuthenticator))
	e.Post("/orders", handlers.RecordOrder)
	e.Post("/gift-codes/redeem", handlers.RedeemGiftCode)

	app.Get("/health", handlers.HealthCheck)

	return &testAPI{
		app:          app,
		workflows:    workflowService,
		entitlements: entitlementsService,
	}
}

func (api *testAPI) publishedWorkflow(t *testing.T) string {
	t.Helper()

	created, err := api.workflows.CreateWorkflow(context.Background(), services.CreateWorkflowRequest{
		Name:        "Trust Onboarding",
		Description: "Guided trust setup",
		Owner:       "owner-1",
		Steps: []*models.StepDefinition{
			{ID: "profile", DisplayName: "Profile", Order: 1, Required: true},
			{ID: "review", DisplayName: "Review", Order: 2, Required: true},
		},
	})
	require.NoError(t, err)

	_, err = api.workflows.PublishWorkflow(context.Background(), created.ID)
	require.NoError(t, err)

	return created.ID
}

func (api *testAPI) grantAccess(t *testing.T, userID, workflowID string) {
	t.Helper()

	_, err := api.entitlements.RecordPaidOrder(context.Background(), userID, workflowID, "order-ref-1")
	require.NoError(t, err)
}

func (api *testAPI) request(t *testing.T, method, path, userID string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	if userID != "" {
		req.Header.Set(web.UserIDHeader, userID)
	}

	resp, err := api.app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func TestCreateAndPublishWorkflowViaAPI(t *testing.T) {
	api := setupTestApp(t)

	resp := api.request(t, http.MethodPost, "/workflows", "", web.CreateWorkflowRequest{
		Name:        "Trust Onboarding",
		Description: "Guided trust setup",
		Owner:       "owner-1",
		Steps: []*models.StepDefinition{
			{ID: "profile", DisplayName: "Profile", Order: 1, Required: true},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeBody[models.Workflow](t, resp)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)

	resp = api.request(t, http.MethodPost, "/workflows/"+created.ID+"/publish", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	published := decodeBody[models.Workflow](t, resp)
	assert.Equal(t, models.WorkflowStatusPublished, published.Status)
}

func TestCreateWorkflowValidation(t *testing.T) {
	api := setupTestApp(t)

	resp := api.request(t, http.MethodPost, "/workflows", "", web.CreateWorkflowRequest{
		Name: "x", // too short, missing description and owner
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetWorkflowNotFound(t *testing.T) {
	api := setupTestApp(t)

	resp := api.request(t, http.MethodGet, "/workflows/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOnboardingRequiresIdentity(t *testing.T) {
	api := setupTestApp(t)
	workflowID := api.publishedWorkflow(t)

	resp := api.request(t, http.MethodGet, "/onboarding/"+workflowID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOnboardingRequiresEntitlement(t *testing.T) {
	api := setupTestApp(t)
	workflowID := api.publishedWorkflow(t)

	resp := api.request(t, http.MethodGet, "/onboarding/"+workflowID, "user-1", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestOnboardingFlow(t *testing.T) {
	api := setupTestApp(t)
	workflowID := api.publishedWorkflow(t)
	api.grantAccess(t, "user-1", workflowID)

	resp := api.request(t, http.MethodGet, "/onboarding/"+workflowID, "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snapshot := decodeBody[services.Snapshot](t, resp)
	assert.Equal(t, 1, snapshot.CurrentStep)
	assert.Equal(t, 2, snapshot.TotalSteps)
	require.NotNil(t, snapshot.Step)
	assert.Equal(t, "profile", snapshot.Step.ID)

	resp = api.request(t, http.MethodPost, "/onboarding/"+workflowID+"/advance", "user-1", web.AdvanceRequest{
		Payload: json.RawMessage(`{"full_name":"Ada"}`),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snapshot = decodeBody[services.Snapshot](t, resp)
	assert.Equal(t, 2, snapshot.CurrentStep)
	assert.JSONEq(t, `{"full_name":"Ada"}`, string(snapshot.StepData["profile"]))

	resp = api.request(t, http.MethodPost, "/onboarding/"+workflowID+"/retreat", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snapshot = decodeBody[services.Snapshot](t, resp)
	assert.Equal(t, 1, snapshot.CurrentStep)

	// Finish both steps.
	resp = api.request(t, http.MethodPost, "/onboarding/"+workflowID+"/advance", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = api.request(t, http.MethodPost, "/onboarding/"+workflowID+"/advance", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snapshot = decodeBody[services.Snapshot](t, resp)
	assert.True(t, snapshot.IsComplete)

	// Advancing past the end conflicts.
	resp = api.request(t, http.MethodPost, "/onboarding/"+workflowID+"/advance", "user-1", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAutosaveEndpoint(t *testing.T) {
	api := setupTestApp(t)
	workflowID := api.publishedWorkflow(t)
	api.grantAccess(t, "user-1", workflowID)

	resp := api.request(t, http.MethodPut, "/onboarding/"+workflowID+"/steps/profile", "user-1", web.AutosaveRequest{
		Payload: json.RawMessage(`{"full_name":"Ada"}`),
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = api.request(t, http.MethodPut, "/onboarding/"+workflowID+"/steps/missing", "user-1", web.AutosaveRequest{
		Payload: json.RawMessage(`{}`),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResetEndpoint(t *testing.T) {
	api := setupTestApp(t)
	workflowID := api.publishedWorkflow(t)
	api.grantAccess(t, "user-1", workflowID)

	resp := api.request(t, http.MethodPost, "/onboarding/"+workflowID+"/advance", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.request(t, http.MethodPost, "/onboarding/"+workflowID+"/reset", "user-1", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = api.request(t, http.MethodGet, "/onboarding/"+workflowID, "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snapshot := decodeBody[services.Snapshot](t, resp)
	assert.Equal(t, 1, snapshot.CurrentStep)
	assert.Empty(t, snapshot.CompletedSteps)
}

func TestEntitlementEndpoints(t *testing.T) {
	api := setupTestApp(t)
	workflowID := api.publishedWorkflow(t)

	resp := api.request(t, http.MethodPost, "/entitlements/gift-codes/redeem", "user-1", web.RedeemGiftCodeRequest{
		WorkflowID: workflowID,
		Code:       "GIFT-2024",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// The redemption opens the workflow.
	resp = api.request(t, http.MethodGet, "/onboarding/"+workflowID, "user-1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// A second redemption of the same code conflicts.
	resp = api.request(t, http.MethodPost, "/entitlements/gift-codes/redeem", "user-2", web.RedeemGiftCodeRequest{
		WorkflowID: workflowID,
		Code:       "GIFT-2024",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	api := setupTestApp(t)

	resp := api.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
