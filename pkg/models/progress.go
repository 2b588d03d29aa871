package models

import (
	"encoding/json"
	"time"
)

// ProgressRecord is the aggregate state of one user's traversal of one
// workflow. CurrentStep is a 1-based pointer into the workflow's ordered
// step list; the value len(steps)+1 signals completion. StepData is keyed
// by stable step ID, never by position, so reordering configured steps
// does not reinterpret saved payloads.
type ProgressRecord struct {
	UserID         string                     `json:"user_id"     validate:"required"`
	WorkflowID     string                     `json:"workflow_id" validate:"required"`
	CurrentStep    int                        `json:"current_step"`
	CompletedSteps []int                      `json:"completed_steps"`
	StepData       map[string]json.RawMessage `json:"step_data"`
	IsComplete     bool                       `json:"is_complete"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

// NewProgressRecord returns the initial empty record for a first workflow
// entry: pointer at step 1, nothing completed, no saved data.
func NewProgressRecord(userID, workflowID string) *ProgressRecord {
	now := time.Now().UTC()

	return &ProgressRecord{
		UserID:         userID,
		WorkflowID:     workflowID,
		CurrentStep:    1,
		CompletedSteps: []int{},
		StepData:       map[string]json.RawMessage{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// HasCompleted reports whether the 1-based step index has been passed
// through an advance.
func (p *ProgressRecord) HasCompleted(index int) bool {
	for _, completed := range p.CompletedSteps {
		if completed == index {
			return true
		}
	}

	return false
}

// MarkCompleted adds the 1-based step index to the completed set.
// Completed entries are never removed except by an explicit reset, and
// revisiting a step does not duplicate its entry.
func (p *ProgressRecord) MarkCompleted(index int) {
	if p.HasCompleted(index) {
		return
	}

	p.CompletedSteps = append(p.CompletedSteps, index)
}

// Clone returns a deep copy. The engine mutates a clone, persists it, and
// only swaps it in once the write is confirmed.
func (p *ProgressRecord) Clone() *ProgressRecord {
	clone := *p

	clone.CompletedSteps = make([]int, len(p.CompletedSteps))
	copy(clone.CompletedSteps, p.CompletedSteps)

	clone.StepData = make(map[string]json.RawMessage, len(p.StepData))
	for key, value := range p.StepData {
		clone.StepData[key] = value
	}

	return &clone
}
