// Package events defines event types and structures for onboarding lifecycle notifications.
package events

import (
	"encoding/json"
	"time"
)

type EventType string

const Topic = "stepline.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	OnboardingStartedEvent   EventType = "onboarding.started"
	StepAdvancedEvent        EventType = "onboarding.step.advanced"
	StepRetreatedEvent       EventType = "onboarding.step.retreated"
	OnboardingCompletedEvent EventType = "onboarding.completed"
	OnboardingResetEvent     EventType = "onboarding.reset"
	ReminderDueEvent         EventType = "onboarding.reminder.due"
	WorkflowPublishedEvent   EventType = "workflow.published"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	UserID     string         `json:"user_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type OnboardingStarted struct {
	BaseEvent

	TotalSteps int `json:"total_steps"`
}

func (e OnboardingStarted) GetType() EventType {
	return OnboardingStartedEvent
}

type StepAdvanced struct {
	BaseEvent

	StepID       string          `json:"step_id"`
	StepIndex    int             `json:"step_index"`
	NextStep     int             `json:"next_step"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	TotalSteps   int             `json:"total_steps"`
	WasCompleted bool            `json:"was_completed"` // step had already been passed before
}

func (e StepAdvanced) GetType() EventType {
	return StepAdvancedEvent
}

type StepRetreated struct {
	BaseEvent

	FromStep int `json:"from_step"`
	ToStep   int `json:"to_step"`
}

func (e StepRetreated) GetType() EventType {
	return StepRetreatedEvent
}

type OnboardingCompleted struct {
	BaseEvent

	TotalSteps  int           `json:"total_steps"`
	TimeToReach time.Duration `json:"time_to_reach"`
}

func (e OnboardingCompleted) GetType() EventType {
	return OnboardingCompletedEvent
}

type OnboardingReset struct {
	BaseEvent
}

func (e OnboardingReset) GetType() EventType {
	return OnboardingResetEvent
}

type ReminderDue struct {
	BaseEvent

	CurrentStep int       `json:"current_step"`
	IdleSince   time.Time `json:"idle_since"`
}

func (e ReminderDue) GetType() EventType {
	return ReminderDueEvent
}

type WorkflowPublished struct {
	BaseEvent

	StepCount int `json:"step_count"`
}

func (e WorkflowPublished) GetType() EventType {
	return WorkflowPublishedEvent
}
