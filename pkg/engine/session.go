package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/stepline/stepline/pkg/eventbus"
	"github.com/stepline/stepline/pkg/events"
	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
	"github.com/stepline/stepline/pkg/protocol"
	"github.com/stepline/stepline/pkg/registry"
)

// ResolutionKind tells the UI shell how to handle the current step.
type ResolutionKind string

const (
	// ResolutionRenderer means a registered renderer produces the step view.
	ResolutionRenderer ResolutionKind = "renderer"
	// ResolutionFallback means no renderer is registered for the step ID;
	// the shell shows an under-development placeholder whose skip action
	// is an ordinary advance with no payload.
	ResolutionFallback ResolutionKind = "fallback"
)

// Resolution pairs the current step with the way it should be presented.
type Resolution struct {
	Kind     ResolutionKind
	Renderer protocol.StepRenderer
}

// Session binds one user's traversal of one workflow. It holds the
// resolved step list, the persisted progress record and the collaborators
// needed to transition. All state shared outside the session travels
// through the progress repository; the session itself is not safe for
// concurrent use.
type Session struct {
	logger    *slog.Logger
	userID    string
	workflow  *models.Workflow
	steps     []*models.StepDefinition
	record    *models.ProgressRecord
	progress  persistence.ProgressRepository
	registry  *registry.Registry
	publisher eventbus.EventPublisher
}

// NewSession resolves the workflow's steps and loads (or initializes) the
// user's progress record. A missing record means first entry: the initial
// record is persisted and an onboarding.started event published. Any other
// load failure is returned as-is; the engine never fabricates state over a
// failing store.
func NewSession(
	ctx context.Context,
	logger *slog.Logger,
	userID string,
	workflow *models.Workflow,
	progress persistence.ProgressRepository,
	reg *registry.Registry,
	publisher eventbus.EventPublisher,
) (*Session, error) {
	if len(workflow.Steps) == 0 {
		return nil, ErrNoSteps
	}

	session := &Session{
		logger:    logger.With("module", "engine", "user_id", userID, "workflow_id", workflow.ID),
		userID:    userID,
		workflow:  workflow,
		steps:     models.SortSteps(workflow.Steps),
		progress:  progress,
		registry:  reg,
		publisher: publisher,
	}

	record, err := progress.Get(ctx, userID, workflow.ID)

	switch {
	case err == nil:
		session.record = record
	case persistence.IsProgressNotFound(err):
		record = models.NewProgressRecord(userID, workflow.ID)
		if err := progress.Save(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to initialize progress record: %w", err)
		}

		session.record = record
		session.publish(ctx, events.OnboardingStarted{
			BaseEvent:  session.baseEvent(events.OnboardingStartedEvent),
			TotalSteps: len(session.steps),
		})
	default:
		return nil, fmt.Errorf("failed to load progress record: %w", err)
	}

	return session, nil
}

// Current returns the step under the pointer and its resolution. When the
// traversal is complete there is no current step and the returned
// definition is nil.
func (s *Session) Current() (*models.StepDefinition, Resolution) {
	if s.record.IsComplete || s.record.CurrentStep > len(s.steps) {
		return nil, Resolution{}
	}

	step := s.steps[s.record.CurrentStep-1]

	if renderer, ok := s.registry.Resolve(step.ID); ok {
		return step, Resolution{Kind: ResolutionRenderer, Renderer: renderer}
	}

	s.logger.Warn("no renderer registered for step, using fallback", "step_id", step.ID)

	return step, Resolution{Kind: ResolutionFallback}
}

// Record returns a snapshot of the progress record. Mutating the snapshot
// does not affect the session.
func (s *Session) Record() *models.ProgressRecord {
	return s.record.Clone()
}

// Steps returns the resolved step list in traversal order.
func (s *Session) Steps() []*models.StepDefinition {
	return s.steps
}

// Advance confirms the current step and moves the pointer forward. When
// payload is non-nil it is validated against the step's payload schema (if
// any) and persisted under the step's stable ID before the pointer moves.
// The in-memory record only changes after every write has succeeded, so a
// failed advance leaves the session exactly where it was.
func (s *Session) Advance(ctx context.Context, payload json.RawMessage) error {
	if s.record.IsComplete {
		return ErrAlreadyComplete
	}

	step := s.steps[s.record.CurrentStep-1]

	if payload != nil {
		if err := s.checkPayloadSchema(step, payload); err != nil {
			return err
		}

		if err := s.progress.SaveStepData(ctx, s.userID, s.workflow.ID, step.ID, payload); err != nil {
			return fmt.Errorf("failed to persist step payload: %w", err)
		}
	}

	wasCompleted := s.record.HasCompleted(s.record.CurrentStep)

	next := s.record.Clone()
	next.MarkCompleted(next.CurrentStep)
	next.CurrentStep++
	next.IsComplete = next.CurrentStep > len(s.steps)
	next.UpdatedAt = time.Now().UTC()

	if payload != nil {
		next.StepData[step.ID] = payload
	}

	if err := s.progress.Save(ctx, next); err != nil {
		return fmt.Errorf("failed to persist progress record: %w", err)
	}

	previous := s.record
	s.record = next

	s.publish(ctx, events.StepAdvanced{
		BaseEvent:    s.baseEvent(events.StepAdvancedEvent),
		StepID:       step.ID,
		StepIndex:    previous.CurrentStep,
		NextStep:     next.CurrentStep,
		Payload:      payload,
		TotalSteps:   len(s.steps),
		WasCompleted: wasCompleted,
	})

	if next.IsComplete {
		s.logger.Info("onboarding completed", "total_steps", len(s.steps))
		s.publish(ctx, events.OnboardingCompleted{
			BaseEvent:   s.baseEvent(events.OnboardingCompletedEvent),
			TotalSteps:  len(s.steps),
			TimeToReach: time.Since(next.CreatedAt),
		})
	}

	return nil
}

// Retreat moves the pointer one step back, floored at the first step.
// Completed entries are kept: revisiting a step does not undo its
// completion. Retreating at step 1 is a no-op, not an error.
func (s *Session) Retreat(ctx context.Context) error {
	if s.record.CurrentStep <= 1 {
		return nil
	}

	next := s.record.Clone()
	next.CurrentStep--
	next.IsComplete = false
	next.UpdatedAt = time.Now().UTC()

	if err := s.progress.Save(ctx, next); err != nil {
		return fmt.Errorf("failed to persist progress record: %w", err)
	}

	from := s.record.CurrentStep
	s.record = next

	s.publish(ctx, events.StepRetreated{
		BaseEvent: s.baseEvent(events.StepRetreatedEvent),
		FromStep:  from,
		ToStep:    next.CurrentStep,
	})

	return nil
}

// UpdateStepData shallow-merges partial into the payload saved under
// stepID without moving the pointer. This is the autosave path: partial
// payloads are not checked against the step's schema, since in-progress
// form state is allowed to be incomplete.
func (s *Session) UpdateStepData(ctx context.Context, stepID string, partial json.RawMessage) error {
	step := s.stepByID(stepID)
	if step == nil {
		return fmt.Errorf("step %q is not part of workflow %q", stepID, s.workflow.ID)
	}

	merged, err := mergePayload(s.record.StepData[stepID], partial)
	if err != nil {
		return err
	}

	if err := s.progress.SaveStepData(ctx, s.userID, s.workflow.ID, stepID, merged); err != nil {
		return persistence.NewStepDataError("update_step_data", s.userID, s.workflow.ID, stepID, err)
	}

	s.record.StepData[stepID] = merged

	return nil
}

func (s *Session) stepByID(stepID string) *models.StepDefinition {
	for _, step := range s.steps {
		if step.ID == stepID {
			return step
		}
	}

	return nil
}

func (s *Session) checkPayloadSchema(step *models.StepDefinition, payload json.RawMessage) error {
	if len(step.PayloadSchema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(step.PayloadSchema),
		gojsonschema.NewBytesLoader(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to validate payload for step %q: %w", step.ID, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			messages = append(messages, resultError.String())
		}

		return fmt.Errorf("%w: step %q: %v", ErrPayloadInvalid, step.ID, messages)
	}

	return nil
}

// mergePayload shallow-merges partial's top-level keys over existing. A
// nil existing payload makes partial the whole payload.
func mergePayload(existing, partial json.RawMessage) (json.RawMessage, error) {
	if len(existing) == 0 {
		return partial, nil
	}

	var base map[string]json.RawMessage
	if err := json.Unmarshal(existing, &base); err != nil {
		return nil, fmt.Errorf("failed to decode existing payload: %w", err)
	}

	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(partial, &overlay); err != nil {
		return nil, fmt.Errorf("failed to decode partial payload: %w", err)
	}

	for key, value := range overlay {
		base[key] = value
	}

	merged, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged payload: %w", err)
	}

	return merged, nil
}

func (s *Session) baseEvent(eventType events.EventType) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: s.workflow.ID,
		UserID:     s.userID,
	}
}

// publish is best effort: a dropped lifecycle event must not fail a
// transition that already persisted.
func (s *Session) publish(ctx context.Context, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, s.userID, event); err != nil {
		s.logger.Warn("failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
