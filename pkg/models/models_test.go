package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortSteps(t *testing.T) {
	steps := []*StepDefinition{
		{ID: "payment", Order: 3},
		{ID: "identity", Order: 1},
		{ID: "certificate", Order: 2},
	}

	sorted := SortSteps(steps)

	require.Len(t, sorted, 3)
	assert.Equal(t, "identity", sorted[0].ID)
	assert.Equal(t, "certificate", sorted[1].ID)
	assert.Equal(t, "payment", sorted[2].ID)

	// Input order is untouched.
	assert.Equal(t, "payment", steps[0].ID)
}

func TestSortSteps_TiesBrokenByID(t *testing.T) {
	steps := []*StepDefinition{
		{ID: "b-step", Order: 1},
		{ID: "a-step", Order: 1},
	}

	sorted := SortSteps(steps)

	assert.Equal(t, "a-step", sorted[0].ID)
	assert.Equal(t, "b-step", sorted[1].ID)
}

func TestWorkflow_StepByID(t *testing.T) {
	workflow := &Workflow{
		Steps: []*StepDefinition{
			{ID: "identity", Order: 1},
			{ID: "payment", Order: 2},
		},
	}

	assert.NotNil(t, workflow.StepByID("payment"))
	assert.Nil(t, workflow.StepByID("missing"))
}

func TestNewProgressRecord(t *testing.T) {
	record := NewProgressRecord("user-1", "wf-1")

	assert.Equal(t, 1, record.CurrentStep)
	assert.Empty(t, record.CompletedSteps)
	assert.Empty(t, record.StepData)
	assert.False(t, record.IsComplete)
	assert.False(t, record.CreatedAt.IsZero())
}

func TestProgressRecord_MarkCompleted(t *testing.T) {
	record := NewProgressRecord("user-1", "wf-1")

	record.MarkCompleted(1)
	record.MarkCompleted(1)
	record.MarkCompleted(2)

	assert.Equal(t, []int{1, 2}, record.CompletedSteps)
	assert.True(t, record.HasCompleted(1))
	assert.False(t, record.HasCompleted(3))
}

func TestProgressRecord_Clone(t *testing.T) {
	record := NewProgressRecord("user-1", "wf-1")
	record.MarkCompleted(1)
	record.StepData["identity"] = json.RawMessage(`{"name":"a"}`)

	clone := record.Clone()
	clone.MarkCompleted(2)
	clone.StepData["certificate"] = json.RawMessage(`{}`)

	assert.Equal(t, []int{1}, record.CompletedSteps)
	assert.Len(t, record.StepData, 1)
	assert.Equal(t, []int{1, 2}, clone.CompletedSteps)
	assert.Len(t, clone.StepData, 2)
}

func TestOrder_Settled(t *testing.T) {
	assert.True(t, (&Order{Status: OrderStatusPaid}).Settled())
	assert.False(t, (&Order{Status: OrderStatusPending}).Settled())
	assert.False(t, (&Order{Status: OrderStatusRefunded}).Settled())
}
