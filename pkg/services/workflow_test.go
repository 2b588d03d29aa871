package services_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence/file"
	"github.com/stepline/stepline/pkg/protocol"
	"github.com/stepline/stepline/pkg/registry"
	"github.com/stepline/stepline/pkg/services"
)

type noopRenderer struct {
	id string
}

func (r noopRenderer) ID() string {
	return r.id
}

func (r noopRenderer) Render(_ context.Context, _ protocol.RenderRequest) (*protocol.RenderResult, error) {
	return &protocol.RenderResult{Kind: "noop", View: map[string]any{}}, nil
}

func newWorkflowService(t *testing.T) (*services.Workflow, *registry.Registry) {
	t.Helper()

	reg := registry.NewRegistry(slog.Default())

	return services.NewWorkflow(slog.Default(), file.NewPersistence(t.TempDir()), reg, nil), reg
}

func createRequest() services.CreateWorkflowRequest {
	return services.CreateWorkflowRequest{
		Name:        "Trust Onboarding",
		Description: "Guided trust setup",
		Owner:       "owner-1",
		Steps: []*models.StepDefinition{
			{ID: "profile", DisplayName: "Profile", Order: 1, Required: true},
			{ID: "review", DisplayName: "Review", Order: 2, Required: true},
		},
	}
}

func TestCreateWorkflowStartsAsDraft(t *testing.T) {
	service, _ := newWorkflowService(t)

	workflow, err := service.CreateWorkflow(t.Context(), createRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, workflow.ID)
	assert.Equal(t, models.WorkflowStatusDraft, workflow.Status)
	assert.Nil(t, workflow.PublishedAt)
}

func TestCreateWorkflowRejectsDuplicateStepIDs(t *testing.T) {
	service, _ := newWorkflowService(t)

	req := createRequest()
	req.Steps = append(req.Steps, &models.StepDefinition{ID: "profile", DisplayName: "Dup", Order: 3})

	_, err := service.CreateWorkflow(t.Context(), req)
	assert.ErrorIs(t, err, services.ErrDuplicateStepID)
	assert.True(t, services.IsValidationError(err))
}

func TestCreateWorkflowRequiresName(t *testing.T) {
	service, _ := newWorkflowService(t)

	req := createRequest()
	req.Name = ""

	_, err := service.CreateWorkflow(t.Context(), req)
	assert.ErrorIs(t, err, services.ErrWorkflowNameRequired)
}

func TestPublishWorkflow(t *testing.T) {
	service, reg := newWorkflowService(t)
	reg.RegisterStep(noopRenderer{id: "profile"})
	reg.RegisterStep(noopRenderer{id: "review"})

	created, err := service.CreateWorkflow(t.Context(), createRequest())
	require.NoError(t, err)

	published, err := service.PublishWorkflow(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)
}

func TestPublishWorkflowRejectsUnregisteredSteps(t *testing.T) {
	service, reg := newWorkflowService(t)
	reg.RegisterStep(noopRenderer{id: "profile"})
	// "review" has no renderer.

	created, err := service.CreateWorkflow(t.Context(), createRequest())
	require.NoError(t, err)

	_, err = service.PublishWorkflow(t.Context(), created.ID)
	assert.True(t, services.IsValidationError(err))
}

func TestPublishWorkflowRejectsEmptySteps(t *testing.T) {
	service, _ := newWorkflowService(t)

	req := createRequest()
	req.Steps = nil

	created, err := service.CreateWorkflow(t.Context(), req)
	require.NoError(t, err)

	_, err = service.PublishWorkflow(t.Context(), created.ID)
	assert.ErrorIs(t, err, services.ErrStepsRequired)
}

func TestUpdatePublishedWorkflowConflicts(t *testing.T) {
	service, reg := newWorkflowService(t)
	reg.RegisterStep(noopRenderer{id: "profile"})
	reg.RegisterStep(noopRenderer{id: "review"})

	created, err := service.CreateWorkflow(t.Context(), createRequest())
	require.NoError(t, err)

	_, err = service.PublishWorkflow(t.Context(), created.ID)
	require.NoError(t, err)

	name := "Renamed"
	_, err = service.UpdateWorkflow(t.Context(), created.ID, services.UpdateWorkflowRequest{Name: &name})
	assert.ErrorIs(t, err, services.ErrCannotModifyPublished)
	assert.True(t, services.IsConflictError(err))
}

func TestUpdateDraftWorkflow(t *testing.T) {
	service, _ := newWorkflowService(t)

	created, err := service.CreateWorkflow(t.Context(), createRequest())
	require.NoError(t, err)

	name := "Renamed"
	updated, err := service.UpdateWorkflow(t.Context(), created.ID, services.UpdateWorkflowRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "Guided trust setup", updated.Description, "unset fields stay untouched")
}

func TestGetWorkflowNotFound(t *testing.T) {
	service, _ := newWorkflowService(t)

	_, err := service.GetWorkflow(t.Context(), "missing")
	assert.ErrorIs(t, err, services.ErrWorkflowNotFound)
}
