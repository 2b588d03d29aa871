// Package redis provides Redis key-value persistence for workflows,
// progress records, and entitlements.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/stepline/stepline/pkg/persistence"
)

const keyPrefix = "stepline"

// Persistence implements the persistence layer on top of a Redis instance.
type Persistence struct {
	client          redis.UniversalClient
	logger          *slog.Logger
	workflowRepo    *WorkflowRepository
	progressRepo    *ProgressRepository
	entitlementRepo *EntitlementRepository
}

// NewPersistence creates a new Redis persistence layer from a redis:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Persistence{
		client:          client,
		logger:          logger,
		workflowRepo:    NewWorkflowRepository(client),
		progressRepo:    NewProgressRepository(client),
		entitlementRepo: NewEntitlementRepository(client),
	}, nil
}

// Close closes the client connection pool.
func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

// HealthCheck verifies the Redis connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ProgressRepository() persistence.ProgressRepository {
	return p.progressRepo
}

func (p *Persistence) EntitlementRepository() persistence.EntitlementRepository {
	return p.entitlementRepo
}
