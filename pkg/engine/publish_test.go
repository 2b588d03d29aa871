package engine_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stepline/stepline/pkg/engine"
	"github.com/stepline/stepline/pkg/mocks"
	"github.com/stepline/stepline/pkg/persistence/file"
	"github.com/stepline/stepline/pkg/registry"
)

// A transition that persisted must survive a broken event bus.
func TestAdvanceToleratesPublishFailure(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	session, err := engine.NewSession(
		t.Context(), slog.Default(), "user-1", threeStepWorkflow(),
		file.NewProgressRepository(t.TempDir()), registry.NewRegistry(slog.Default()), bus,
	)
	require.NoError(t, err)

	require.NoError(t, session.Advance(t.Context(), nil))
	assert.Equal(t, 2, session.Record().CurrentStep)

	bus.AssertCalled(t, "Publish", mock.Anything, "user-1", mock.Anything)
}
