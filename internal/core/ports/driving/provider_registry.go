package driving

import (
	"context"

	"github.com/custodia-labs/docrag/internal/core/domain"
)

// ProviderRegistry reports which providers can be resolved.
type ProviderRegistry interface {
	// Providers returns every known provider for a role with its configuration state.
	Providers(role domain.ProviderRole) []domain.ProviderStatus

	// Validate checks that an override (or the default when nil) resolves for a role.
	// It performs no network calls.
	Validate(role domain.ProviderRole, override *domain.ProviderOverride) error

	// Models lists the generation models a provider offers.
	Models(ctx context.Context, provider string) (domain.ModelCatalog, error)
}
