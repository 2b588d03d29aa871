// Package main provides the Stepline API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/stepline/stepline/pkg/access"
	"github.com/stepline/stepline/pkg/cmd"
	"github.com/stepline/stepline/pkg/eventbus"
	"github.com/stepline/stepline/pkg/persistence"
	"github.com/stepline/stepline/pkg/registry"
	"github.com/stepline/stepline/pkg/services"
	"github.com/stepline/stepline/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	gate        *access.Gate
	eventBus    eventbus.EventBus
	validate    *validator.Validate
	onboarding  *services.Onboarding
}

func NewAPI(
	logger *slog.Logger,
	persist persistence.Persistence,
	eventBus eventbus.EventBus,
	registryConfig cmd.RegistryConfig,
) *API {
	gate := access.NewGate(persist.EntitlementRepository(), logger)

	return &API{
		logger:      logger,
		persistence: persist,
		registry:    cmd.NewRegistry(logger, gate, registryConfig),
		gate:        gate,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.logger, a.persistence, a.registry, a.eventBus)
	a.onboarding = services.NewOnboarding(a.logger, a.persistence, a.registry, a.gate, a.eventBus)
	entitlementsService := services.NewEntitlements(a.logger, a.persistence)

	handlers := web.NewAPIHandlers(workflowService, a.onboarding, entitlementsService, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Stepline API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/publish", handlers.PublishWorkflow)

	o := app.Group("/onboarding", web.RequireUser(web.HeaderAuthenticator))
	o.Get("/:workflowId", handlers.GetOnboarding)
	o.Post("/:workflowId/advance", handlers.AdvanceOnboarding)
	o.Post("/:workflowId/retreat", handlers.RetreatOnboarding)
	o.Put("/:workflowId/steps/:stepId", handlers.AutosaveStep)
	o.Post("/:workflowId/reset", handlers.ResetOnboarding)

	e := app.Group("/entitlements", web.RequireUser(web.HeaderAuthenticator))
	e.Post("/orders", handlers.RecordOrder)
	e.Post("/gift-codes/redeem", handlers.RedeemGiftCode)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	defer func() {
		if err := a.onboarding.Close(ctx); err != nil {
			a.logger.ErrorContext(ctx, "Failed to flush autosaves", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}
