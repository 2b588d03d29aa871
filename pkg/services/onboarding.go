package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stepline/stepline/pkg/access"
	"github.com/stepline/stepline/pkg/autosave"
	"github.com/stepline/stepline/pkg/engine"
	"github.com/stepline/stepline/pkg/eventbus"
	"github.com/stepline/stepline/pkg/events"
	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/otelhelper"
	"github.com/stepline/stepline/pkg/persistence"
	"github.com/stepline/stepline/pkg/protocol"
	"github.com/stepline/stepline/pkg/registry"
)

// autosaveKeySep joins (user, workflow, step) into one coordinator key.
// U+001F is not legal in any of the three identifiers.
const autosaveKeySep = "\x1f"

// autosaveFlushTimeout bounds the background write when a debounce timer
// fires outside any request context.
const autosaveFlushTimeout = 10 * time.Second

// Onboarding orchestrates a user's traversal of a published workflow:
// entitlement gating, engine sessions, debounced autosave and reset.
type Onboarding struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	gate        *access.Gate
	publisher   eventbus.EventPublisher
	coordinator *autosave.Coordinator
	tracer      trace.Tracer
}

// NewOnboarding creates a new onboarding service. The returned service owns
// an autosave coordinator; call Close to flush it on shutdown.
func NewOnboarding(
	logger *slog.Logger,
	persist persistence.Persistence,
	reg *registry.Registry,
	gate *access.Gate,
	publisher eventbus.EventPublisher,
	opts ...autosave.Option,
) *Onboarding {
	service := &Onboarding{
		logger:      logger.With("module", "onboarding_service"),
		persistence: persist,
		registry:    reg,
		gate:        gate,
		publisher:   publisher,
		tracer:      otel.Tracer("stepline/onboarding"),
	}

	service.coordinator = autosave.NewCoordinator(logger, service.writeAutosave, opts...)

	go service.drainAutosaveErrors()

	return service
}

// Close flushes pending autosaves and stops the coordinator.
func (o *Onboarding) Close(ctx context.Context) error {
	return o.coordinator.Close(ctx)
}

// Snapshot is the full client-facing view of one user's progress.
type Snapshot struct {
	WorkflowID     string                     `json:"workflow_id"`
	WorkflowName   string                     `json:"workflow_name"`
	CurrentStep    int                        `json:"current_step"`
	TotalSteps     int                        `json:"total_steps"`
	CompletedSteps []int                      `json:"completed_steps"`
	IsComplete     bool                       `json:"is_complete"`
	StepData       map[string]json.RawMessage `json:"step_data"`
	Step           *models.StepDefinition     `json:"step,omitempty"`
	Resolution     engine.ResolutionKind      `json:"resolution,omitempty"`
	View           *protocol.RenderResult     `json:"view,omitempty"`
}

// Enter opens (or resumes) an onboarding session and returns its snapshot.
func (o *Onboarding) Enter(ctx context.Context, userID, workflowID string) (*Snapshot, error) {
	session, workflow, err := o.session(ctx, userID, workflowID)
	if err != nil {
		return nil, err
	}

	return o.snapshot(ctx, session, workflow), nil
}

// Advance confirms the current step, optionally with an explicit payload,
// and returns the post-transition snapshot.
func (o *Onboarding) Advance(ctx context.Context, userID, workflowID string, payload json.RawMessage) (*Snapshot, error) {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "onboarding.advance",
		attribute.String(otelhelper.UserIDKey, userID),
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
	)
	defer span.End()

	session, workflow, err := o.session(ctx, userID, workflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.Int(otelhelper.StepIndexKey, session.Record().CurrentStep))

	if err := session.Advance(ctx, payload); err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return o.snapshot(ctx, session, workflow), nil
}

// Retreat moves one step back and returns the post-transition snapshot.
func (o *Onboarding) Retreat(ctx context.Context, userID, workflowID string) (*Snapshot, error) {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "onboarding.retreat",
		attribute.String(otelhelper.UserIDKey, userID),
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
	)
	defer span.End()

	session, workflow, err := o.session(ctx, userID, workflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if err := session.Retreat(ctx); err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return o.snapshot(ctx, session, workflow), nil
}

// Autosave schedules a debounced partial-payload write for a step. The
// write happens after the debounce interval (coalescing rapid edits) and
// never moves the step pointer. The entitlement and workflow checks run
// here so a rejected request fails fast, not in a background timer.
func (o *Onboarding) Autosave(ctx context.Context, userID, workflowID, stepID string, partial json.RawMessage) error {
	session, _, err := o.session(ctx, userID, workflowID)
	if err != nil {
		return err
	}

	if step := findStep(session.Steps(), stepID); step == nil {
		return fmt.Errorf("%w: unknown step %q", ErrInvalidRequest, stepID)
	}

	o.coordinator.Schedule(strings.Join([]string{userID, workflowID, stepID}, autosaveKeySep), partial)

	return nil
}

// FlushAutosaves forces pending autosave writes; used on shutdown and in
// tests.
func (o *Onboarding) FlushAutosaves(ctx context.Context) error {
	return o.coordinator.Flush(ctx)
}

// Reset deletes the user's progress record so the next entry starts from
// step 1. Deleting an absent record is not an error.
func (o *Onboarding) Reset(ctx context.Context, userID, workflowID string) error {
	if userID == "" {
		return ErrUserRequired
	}

	if err := o.persistence.ProgressRepository().Delete(ctx, userID, workflowID); err != nil {
		return fmt.Errorf("failed to reset progress: %w", err)
	}

	o.logger.InfoContext(ctx, "progress reset", "user_id", userID, "workflow_id", workflowID)

	o.publish(ctx, userID, events.OnboardingReset{
		BaseEvent: events.BaseEvent{
			ID:         uuid.NewString(),
			Type:       events.OnboardingResetEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: workflowID,
			UserID:     userID,
		},
	})

	return nil
}

// session runs the entry checks (identity, workflow published, access
// gate) and builds the engine session.
func (o *Onboarding) session(ctx context.Context, userID, workflowID string) (*engine.Session, *models.Workflow, error) {
	if userID == "" {
		return nil, nil, ErrUserRequired
	}

	workflow, err := o.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}

	if workflow.Status != models.WorkflowStatusPublished {
		return nil, nil, ErrWorkflowNotPublished
	}

	allowed, err := o.gate.HasAccess(ctx, userID, workflowID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to evaluate access gate: %w", err)
	}

	if !allowed {
		return nil, nil, ErrAccessDenied
	}

	session, err := engine.NewSession(
		ctx, o.logger, userID, workflow, o.persistence.ProgressRepository(), o.registry, o.publisher,
	)
	if err != nil {
		return nil, nil, err
	}

	return session, workflow, nil
}

func (o *Onboarding) snapshot(ctx context.Context, session *engine.Session, workflow *models.Workflow) *Snapshot {
	record := session.Record()

	snapshot := &Snapshot{
		WorkflowID:     workflow.ID,
		WorkflowName:   workflow.Name,
		CurrentStep:    record.CurrentStep,
		TotalSteps:     len(session.Steps()),
		CompletedSteps: record.CompletedSteps,
		IsComplete:     record.IsComplete,
		StepData:       record.StepData,
	}

	step, resolution := session.Current()
	if step == nil {
		return snapshot
	}

	snapshot.Step = step
	snapshot.Resolution = resolution.Kind

	if resolution.Kind != engine.ResolutionRenderer {
		return snapshot
	}

	view, err := resolution.Renderer.Render(ctx, protocol.RenderRequest{
		Step:       *step,
		Data:       record.StepData[step.ID],
		UserID:     record.UserID,
		WorkflowID: workflow.ID,
	})
	if err != nil {
		// A broken renderer degrades to the fallback view rather than
		// failing the whole snapshot.
		o.logger.WarnContext(ctx, "step render failed", "step_id", step.ID, "error", err)
		snapshot.Resolution = engine.ResolutionFallback

		return snapshot
	}

	snapshot.View = view

	return snapshot
}

// writeAutosave is the coordinator's flush target: it rebuilds the session
// for the key and merges the coalesced payload.
func (o *Onboarding) writeAutosave(ctx context.Context, key string, payload json.RawMessage) error {
	parts := strings.SplitN(key, autosaveKeySep, 3)
	if len(parts) != 3 {
		return fmt.Errorf("%w: malformed autosave key %q", ErrInvalidRequest, key)
	}

	userID, workflowID, stepID := parts[0], parts[1], parts[2]

	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > autosaveFlushTimeout {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, autosaveFlushTimeout)
		defer cancel()
	}

	session, _, err := o.session(ctx, userID, workflowID)
	if err != nil {
		return err
	}

	return session.UpdateStepData(ctx, stepID, payload)
}

func (o *Onboarding) drainAutosaveErrors() {
	for err := range o.coordinator.Errors() {
		o.logger.Error("autosave write failed", "error", err)
	}
}

func (o *Onboarding) publish(ctx context.Context, key string, event eventbus.Event) {
	if o.publisher == nil {
		return
	}

	if err := o.publisher.Publish(ctx, key, event); err != nil {
		o.logger.WarnContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func findStep(steps []*models.StepDefinition, stepID string) *models.StepDefinition {
	for _, step := range steps {
		if step.ID == stepID {
			return step
		}
	}

	return nil
}
