package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stepline/stepline/pkg/models"
	"github.com/stepline/stepline/pkg/persistence"
)

// EntitlementRepository handles order and gift-redemption file operations.
type EntitlementRepository struct {
	root string
	mu   sync.Mutex
}

// NewEntitlementRepository creates a new entitlement repository.
func NewEntitlementRepository(root string) *EntitlementRepository {
	return &EntitlementRepository{root: root}
}

func (er *EntitlementRepository) ordersDir() string {
	return path.Join(er.root, "orders")
}

func (er *EntitlementRepository) redemptionsDir() string {
	return path.Join(er.root, "redemptions")
}

// PaidOrder returns a paid-and-settled order for (userID, workflowID), or
// persistence.ErrOrderNotFound when none exists.
func (er *EntitlementRepository) PaidOrder(_ context.Context, userID, workflowID string) (*models.Order, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	if _, err := os.Stat(er.ordersDir()); os.IsNotExist(err) {
		return nil, persistence.ErrOrderNotFound
	}

	jsonFiles, err := fs.Glob(os.DirFS(er.ordersDir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list order files: %w", err)
	}

	for _, file := range jsonFiles {
		data, err := os.ReadFile(path.Join(er.ordersDir(), file))
		if err != nil {
			return nil, fmt.Errorf("failed to read order file %s: %w", file, err)
		}

		var order models.Order

		err = json.Unmarshal(data, &order)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal order file %s: %w", file, err)
		}

		if order.UserID == userID && order.WorkflowID == workflowID && order.Settled() {
			return &order, nil
		}
	}

	return nil, persistence.ErrOrderNotFound
}

// SaveOrder upserts an order, generating an ID and timestamps as needed.
func (er *EntitlementRepository) SaveOrder(_ context.Context, order *models.Order) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	now := time.Now().UTC()

	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}

	order.UpdatedAt = now

	if order.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate order ID: %w", err)
		}

		order.ID = id.String()
	}

	err := os.MkdirAll(er.ordersDir(), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create orders directory: %w", err)
	}

	data, err := json.MarshalIndent(order, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal order %s: %w", order.ID, err)
	}

	err = os.WriteFile(path.Join(er.ordersDir(), order.ID+".json"), data, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write order file: %w", err)
	}

	return nil
}

// Redemption returns the redemption made by userID for workflowID, or
// persistence.ErrRedemptionNotFound.
func (er *EntitlementRepository) Redemption(_ context.Context, userID, workflowID string) (*models.GiftRedemption, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	if _, err := os.Stat(er.redemptionsDir()); os.IsNotExist(err) {
		return nil, persistence.ErrRedemptionNotFound
	}

	jsonFiles, err := fs.Glob(os.DirFS(er.redemptionsDir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list redemption files: %w", err)
	}

	for _, file := range jsonFiles {
		redemption, err := er.readRedemption(path.Join(er.redemptionsDir(), file))
		if err != nil {
			return nil, err
		}

		if redemption.RedeemedBy == userID && redemption.WorkflowID == workflowID {
			return redemption, nil
		}
	}

	return nil, persistence.ErrRedemptionNotFound
}

// RedemptionByCode returns the redemption bound to a code, or
// persistence.ErrRedemptionNotFound when the code is unredeemed.
func (er *EntitlementRepository) RedemptionByCode(_ context.Context, code string) (*models.GiftRedemption, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	redemption, err := er.readRedemption(er.redemptionPath(code))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.ErrRedemptionNotFound
		}

		return nil, err
	}

	return redemption, nil
}

// SaveRedemption binds a code to a user. A code is single-use; writing an
// already-redeemed code returns persistence.ErrCodeAlreadyRedeemed.
func (er *EntitlementRepository) SaveRedemption(_ context.Context, redemption *models.GiftRedemption) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	if _, err := os.Stat(er.redemptionPath(redemption.Code)); err == nil {
		return persistence.ErrCodeAlreadyRedeemed
	}

	if redemption.RedeemedAt.IsZero() {
		redemption.RedeemedAt = time.Now().UTC()
	}

	err := os.MkdirAll(er.redemptionsDir(), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create redemptions directory: %w", err)
	}

	data, err := json.MarshalIndent(redemption, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal redemption %s: %w", redemption.Code, err)
	}

	err = os.WriteFile(er.redemptionPath(redemption.Code), data, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write redemption file: %w", err)
	}

	return nil
}

func (er *EntitlementRepository) redemptionPath(code string) string {
	return path.Join(er.redemptionsDir(), url.PathEscape(code)+".json")
}

func (er *EntitlementRepository) readRedemption(filePath string) (*models.GiftRedemption, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var redemption models.GiftRedemption

	err = json.Unmarshal(data, &redemption)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal redemption file %s: %w", filePath, err)
	}

	return &redemption, nil
}
