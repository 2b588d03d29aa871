package models

import "sort"

// StepDefinition describes one unit of a workflow. ID is the stable
// identifier stored payloads are keyed by; Order only controls traversal
// sequence and may be changed without invalidating saved data.
type StepDefinition struct {
	ID          string `json:"id"           validate:"required,lowercase"`
	DisplayName string `json:"display_name" validate:"required"`
	Order       int    `json:"order"`
	Required    bool   `json:"required"`

	// PayloadSchema, when set, is a JSON Schema applied to explicit
	// advance payloads for this step. Autosaved partial payloads are not
	// checked against it.
	PayloadSchema map[string]any `json:"payload_schema,omitempty"`
}

// SortSteps returns a copy of steps sorted by Order ascending, ties broken
// by ID so the traversal sequence is deterministic.
func SortSteps(steps []*StepDefinition) []*StepDefinition {
	sorted := make([]*StepDefinition, len(steps))
	copy(sorted, steps)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order < sorted[j].Order
		}

		return sorted[i].ID < sorted[j].ID
	})

	return sorted
}
