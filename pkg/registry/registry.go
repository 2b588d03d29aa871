// Package registry maps stable step identifiers to their renderer
// implementations. Unregistered identifiers degrade to a skip-offering
// placeholder at render time; Validate lets operators fail fast at
// publish time instead.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/protocol"
)

type Registry struct {
	logger    *slog.Logger
	renderers map[string]protocol.StepRenderer
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log,
		renderers: make(map[string]protocol.StepRenderer),
	}
}

// RegisterStep registers a renderer under its stable step ID. A second
// registration for the same ID replaces the first.
func (r *Registry) RegisterStep(renderer protocol.StepRenderer) {
	if _, exists := r.renderers[renderer.ID()]; exists {
		r.logger.Warn("replacing step renderer", "step_id", renderer.ID())
	}

	r.renderers[renderer.ID()] = renderer
}

// Resolve returns the renderer for a step ID. The second return reports
// whether an implementation is registered; callers fall back to the
// under-development placeholder when it is false.
func (r *Registry) Resolve(stepID string) (protocol.StepRenderer, bool) {
	renderer, ok := r.renderers[stepID]

	return renderer, ok
}

// RegisteredSteps returns the sorted step IDs with implementations.
func (r *Registry) RegisteredSteps() []string {
	ids := make([]string, 0, len(r.renderers))
	for id := range r.renderers {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Validate reports an error naming every step of the workflow that has no
// registered renderer. Used at publish time so partially implemented
// workflows are an operator decision, not a surprise.
func (r *Registry) Validate(workflow *models.Workflow) error {
	var missing []string

	for _, step := range workflow.OrderedSteps() {
		if _, ok := r.renderers[step.ID]; !ok {
			missing = append(missing, step.ID)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("workflow %s has steps without registered renderers: %s",
			workflow.ID, strings.Join(missing, ", "))
	}

	return nil
}

// HealthCheck reports registry status for the health endpoint.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.renderers) == 0 {
		return "No step renderers registered", false
	}

	return fmt.Sprintf("%d step renderers registered", len(r.renderers)), true
}
