package services_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence/file"
	"github.com/stepline/stepline/pkg/services"
)

func newEntitlementsService(t *testing.T) *services.Entitlements {
	t.Helper()

	return services.NewEntitlements(slog.Default(), file.NewPersistence(t.TempDir()))
}

func TestRecordPaidOrder(t *testing.T) {
	service := newEntitlementsService(t)

	order, err := service.RecordPaidOrder(t.Context(), "user-1", "wf-1", "stripe-123")
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.True(t, order.Settled())
}

func TestRecordPaidOrderRequiresUser(t *testing.T) {
	service := newEntitlementsService(t)

	_, err := service.RecordPaidOrder(t.Context(), "", "wf-1", "stripe-123")
	assert.ErrorIs(t, err, services.ErrUserRequired)
}

func TestRedeemGiftCode(t *testing.T) {
	service := newEntitlementsService(t)

	redemption, err := service.RedeemGiftCode(t.Context(), "user-1", "wf-1", "GIFT-2024")
	require.NoError(t, err)
	assert.Equal(t, "user-1", redemption.RedeemedBy)
	assert.False(t, redemption.RedeemedAt.IsZero())
}

func TestRedeemGiftCodeSingleUse(t *testing.T) {
	service := newEntitlementsService(t)

	_, err := service.RedeemGiftCode(t.Context(), "user-1", "wf-1", "GIFT-2024")
	require.NoError(t, err)

	// Same code, different user: still a conflict.
	_, err = service.RedeemGiftCode(t.Context(), "user-2", "wf-1", "GIFT-2024")
	assert.ErrorIs(t, err, services.ErrCodeAlreadyRedeemed)
	assert.True(t, services.IsConflictError(err))
}

func TestRedeemGiftCodeRequiresCode(t *testing.T) {
	service := newEntitlementsService(t)

	_, err := service.RedeemGiftCode(t.Context(), "user-1", "wf-1", "")
	assert.ErrorIs(t, err, services.ErrCodeRequired)
}
