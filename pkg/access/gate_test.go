package access_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepline/stepline/pkg/access"
	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence/file"
)

func newGate(t *testing.T) (*access.Gate, *file.EntitlementRepository) {
	t.Helper()

	repo := file.NewEntitlementRepository(t.TempDir())

	return access.NewGate(repo, slog.Default()), repo
}

func TestGateAnonymousUser(t *testing.T) {
	gate, _ := newGate(t)

	ok, err := gate.HasAccess(t.Context(), "", "wf-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGateNoEntitlement(t *testing.T) {
	gate, _ := newGate(t)

	ok, err := gate.HasAccess(t.Context(), "user-1", "wf-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGatePaidOrder(t *testing.T) {
	gate, repo := newGate(t)

	order := &models.Order{UserID: "user-1", WorkflowID: "wf-1", Status: models.OrderStatusPaid}
	require.NoError(t, repo.SaveOrder(t.Context(), order))

	ok, err := gate.HasAccess(t.Context(), "user-1", "wf-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGatePendingOrderDeniesAccess(t *testing.T) {
	gate, repo := newGate(t)

	order := &models.Order{UserID: "user-1", WorkflowID: "wf-1", Status: models.OrderStatusPending}
	require.NoError(t, repo.SaveOrder(t.Context(), order))

	ok, err := gate.HasAccess(t.Context(), "user-1", "wf-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGateGiftRedemption(t *testing.T) {
	gate, repo := newGate(t)

	redemption := &models.GiftRedemption{
		Code:       "GIFT-42",
		RedeemedBy: "user-1",
		WorkflowID: "wf-1",
		RedeemedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.SaveRedemption(t.Context(), redemption))

	ok, err := gate.HasAccess(t.Context(), "user-1", "wf-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGateEitherEntitlementSuffices(t *testing.T) {
	gate, repo := newGate(t)

	order := &models.Order{UserID: "user-1", WorkflowID: "wf-1", Status: models.OrderStatusPaid}
	require.NoError(t, repo.SaveOrder(t.Context(), order))

	redemption := &models.GiftRedemption{
		Code:       "GIFT-43",
		RedeemedBy: "user-1",
		WorkflowID: "wf-1",
		RedeemedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.SaveRedemption(t.Context(), redemption))

	ok, err := gate.HasAccess(t.Context(), "user-1", "wf-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGateIsScopedPerWorkflow(t *testing.T) {
	gate, repo := newGate(t)

	order := &models.Order{UserID: "user-1", WorkflowID: "wf-1", Status: models.OrderStatusPaid}
	require.NoError(t, repo.SaveOrder(t.Context(), order))

	ok, err := gate.HasAccess(t.Context(), "user-1", "wf-2")
	require.NoError(t, err)
	assert.False(t, ok)
}
