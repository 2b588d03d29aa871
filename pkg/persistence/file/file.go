// Package file provides file-based persistence for workflows, progress
// records, and entitlements. It is intended for development and tests.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/stepline/stepline/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root            string
	workflowRepo    *WorkflowRepository
	progressRepo    *ProgressRepository
	entitlementRepo *EntitlementRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:            cleanRoot,
		workflowRepo:    NewWorkflowRepository(cleanRoot),
		progressRepo:    NewProgressRepository(cleanRoot),
		entitlementRepo: NewEntitlementRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) ProgressRepository() persistence.ProgressRepository {
	return fp.progressRepo
}

func (fp *Persistence) EntitlementRepository() persistence.EntitlementRepository {
	return fp.entitlementRepo
}
