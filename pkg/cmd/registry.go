// Package cmd provides common initialization functions for the binaries.
package cmd

import (
	"log/slog"

	"github.com/stepline/stepline/pkg/access"
	"github.com/stepline/stepline/pkg/registry"
	"github.com/stepline/stepline/pkg/steps/form"
	"github.com/stepline/stepline/pkg/steps/payment"
	"github.com/stepline/stepline/pkg/steps/upload"
)

// RegistryConfig carries the deployment-specific settings the native step
// renderers need.
type RegistryConfig struct {
	CheckoutURL string
}

// NewRegistry builds the step registry with the native renderers: the
// form-entry steps, the document upload step and the payment step.
// Workflows referencing other step ids fall back to the engine's
// under-development resolution.
func NewRegistry(log *slog.Logger, gate *access.Gate, config RegistryConfig) *registry.Registry {
	reg := registry.NewRegistry(log)

	reg.RegisterStep(form.NewRenderer("profile", []string{"full_name", "email", "phone"}))
	reg.RegisterStep(form.NewRenderer("trust-details", []string{"trust_name", "state", "beneficiaries"}))
	reg.RegisterStep(form.NewRenderer("review", nil))
	reg.RegisterStep(upload.NewRenderer("documents", []string{"application/pdf", "image/jpeg", "image/png"}))
	reg.RegisterStep(payment.NewRenderer("payment", config.CheckoutURL, gate))

	return reg
}
