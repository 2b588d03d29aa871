package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepline/stepline/pkg/channels/gochannel"
	"github.com/stepline/stepline/pkg/eventbus"
	"github.com/stepline/stepline/pkg/events"
)

func newTestBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestPublishAndHandleRoundtrip(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.StepAdvanced, 1)

	require.NoError(t, bus.Handle(events.StepAdvancedEvent, func(_ context.Context, event any) error {
		advanced, ok := event.(*events.StepAdvanced)
		if ok {
			received <- advanced
		}

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	sent := events.StepAdvanced{
		BaseEvent: events.BaseEvent{
			ID:         bus.GenerateID(),
			Type:       events.StepAdvancedEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: "wf-1",
			UserID:     "user-1",
		},
		StepID:     "profile",
		StepIndex:  1,
		NextStep:   2,
		TotalSteps: 3,
	}
	require.NoError(t, bus.Publish(t.Context(), "user-1", sent))

	select {
	case got := <-received:
		assert.Equal(t, "profile", got.StepID)
		assert.Equal(t, 2, got.NextStep)
		assert.Equal(t, "user-1", got.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a step.advanced event")
	}
}

func TestUnhandledEventTypesAreAcked(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan struct{}, 1)

	require.NoError(t, bus.Handle(events.OnboardingResetEvent, func(_ context.Context, _ any) error {
		received <- struct{}{}

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	// No handler registered for this type; it must not wedge the stream.
	require.NoError(t, bus.Publish(t.Context(), "user-1", events.OnboardingCompleted{
		BaseEvent: events.BaseEvent{ID: bus.GenerateID(), Type: events.OnboardingCompletedEvent, WorkflowID: "wf-1"},
	}))

	require.NoError(t, bus.Publish(t.Context(), "user-1", events.OnboardingReset{
		BaseEvent: events.BaseEvent{ID: bus.GenerateID(), Type: events.OnboardingResetEvent, WorkflowID: "wf-1"},
	}))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the reset event after the unhandled one")
	}
}
