package main

import (
	"context"
	"errors"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/stepline/stepline/pkg/access"
	"github.com/stepline/stepline/pkg/cmd"
	"github.com/stepline/stepline/pkg/log"
	"github.com/stepline/stepline/pkg/models"
)

// validateWorkflow loads one workflow and runs the same renderer check
// publication does, without publishing.
func validateWorkflow(ctx context.Context, command *cli.Command) error {
	logger := log.WithModule("validate")

	workflowID := command.Args().First()
	if workflowID == "" {
		return errors.New("workflow id argument is required")
	}

	persist, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persist.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	workflow, err := persist.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return err
	}

	gate := access.NewGate(persist.EntitlementRepository(), logger)
	reg := cmd.NewRegistry(logger, gate, cmd.RegistryConfig{})

	if len(workflow.Steps) == 0 {
		return fmt.Errorf("workflow %q has no configured steps", workflowID)
	}

	if err := reg.Validate(workflow); err != nil {
		return err
	}

	fmt.Printf("workflow %q ok: %d steps, all renderers registered\n", workflowID, len(workflow.Steps))

	for _, step := range models.SortSteps(workflow.Steps) {
		fmt.Printf("  %2d. %s (%s)\n", step.Order, step.DisplayName, step.ID)
	}

	return nil
}
