package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
	"github.com/custodia-labs/docrag/internal/core/ports/driving"
)

// ProviderSource supplies the configuration a provider client is built from.
type ProviderSource interface {
	ProviderConfig(role domain.ProviderRole, name domain.AIProvider, model string) domain.ProviderConfig
}

// EmbeddingClient is an embedding service tagged with the provider it came from.
type EmbeddingClient struct {
	Provider domain.AIProvider
	driven.EmbeddingService
}

// GenerationClient is an LLM service tagged with the provider it came from.
type GenerationClient struct {
	Provider domain.AIProvider
	driven.LLMService
}

type clientKey struct {
	name  domain.AIProvider
	model string
}

// ProviderRegistry resolves provider names to clients.
//
// Resolution validates the name and credential before anything else and
// never touches the network. Clients are cached per provider and model.
type ProviderRegistry struct {
	factory  driven.ProviderFactory
	source   ProviderSource
	defaults map[domain.ProviderRole]domain.AIProvider

	mu         sync.Mutex
	embeddings map[clientKey]driven.EmbeddingService
	llms       map[clientKey]driven.LLMService
}

// Ensure ProviderRegistry implements the interface.
var _ driving.ProviderRegistry = (*ProviderRegistry)(nil)

// NewProviderRegistry creates a registry with per-role default providers.
func NewProviderRegistry(
	factory driven.ProviderFactory,
	source ProviderSource,
	defaultEmbedding, defaultGeneration domain.AIProvider,
) *ProviderRegistry {
	return &ProviderRegistry{
		factory: factory,
		source:  source,
		defaults: map[domain.ProviderRole]domain.AIProvider{
			domain.RoleEmbedding:  defaultEmbedding,
			domain.RoleGeneration: defaultGeneration,
		},
		embeddings: make(map[clientKey]driven.EmbeddingService),
		llms:       make(map[clientKey]driven.LLMService),
	}
}

// ResolveEmbedding returns the embedding client for a provider name.
// An empty name selects the default provider.
func (r *ProviderRegistry) ResolveEmbedding(name string) (*EmbeddingClient, error) {
	return r.ResolveEmbeddingDynamic(&domain.ProviderOverride{Provider: name})
}

// ResolveEmbeddingDynamic resolves with a per-request override taking
// precedence over the defaults. Empty override fields fall back to defaults.
func (r *ProviderRegistry) ResolveEmbeddingDynamic(override *domain.ProviderOverride) (*EmbeddingClient, error) {
	cfg, err := r.configFor(domain.RoleEmbedding, override)
	if err != nil {
		return nil, err
	}

	key := clientKey{name: cfg.Name, model: cfg.Model}
	r.mu.Lock()
	defer r.mu.Unlock()

	if svc, ok := r.embeddings[key]; ok {
		return &EmbeddingClient{Provider: cfg.Name, EmbeddingService: svc}, nil
	}
	svc, err := r.factory.NewEmbedding(cfg)
	if err != nil {
		return nil, err
	}
	r.embeddings[key] = svc
	return &EmbeddingClient{Provider: cfg.Name, EmbeddingService: svc}, nil
}

// ResolveGeneration returns the generation client for a provider name.
// An empty name selects the default provider.
func (r *ProviderRegistry) ResolveGeneration(name string) (*GenerationClient, error) {
	return r.ResolveGenerationDynamic(&domain.ProviderOverride{Provider: name})
}

// ResolveGenerationDynamic resolves with a per-request override taking
// precedence over the defaults.
func (r *ProviderRegistry) ResolveGenerationDynamic(override *domain.ProviderOverride) (*GenerationClient, error) {
	cfg, err := r.configFor(domain.RoleGeneration, override)
	if err != nil {
		return nil, err
	}

	key := clientKey{name: cfg.Name, model: cfg.Model}
	r.mu.Lock()
	defer r.mu.Unlock()

	if svc, ok := r.llms[key]; ok {
		return &GenerationClient{Provider: cfg.Name, LLMService: svc}, nil
	}
	svc, err := r.factory.NewLLM(cfg)
	if err != nil {
		return nil, err
	}
	r.llms[key] = svc
	return &GenerationClient{Provider: cfg.Name, LLMService: svc}, nil
}

// Validate checks that an override resolves for a role without building a client.
func (r *ProviderRegistry) Validate(role domain.ProviderRole, override *domain.ProviderOverride) error {
	_, err := r.configFor(role, override)
	return err
}

// Providers lists every provider for a role with whether it can be resolved.
func (r *ProviderRegistry) Providers(role domain.ProviderRole) []domain.ProviderStatus {
	providers := domain.ProvidersFor(role)
	statuses := make([]domain.ProviderStatus, 0, len(providers))
	for _, p := range providers {
		cfg := r.source.ProviderConfig(role, p, "")
		statuses = append(statuses, domain.ProviderStatus{
			Name:        p,
			Description: p.Description(),
			Model:       cfg.Model,
			Configured:  cfg.IsConfigured(),
			Default:     p == r.defaults[role],
		})
	}
	return statuses
}

// Models lists the generation models a provider offers. Local runtimes are
// asked for what they have pulled; cloud providers report a fixed catalog.
func (r *ProviderRegistry) Models(ctx context.Context, provider string) (domain.ModelCatalog, error) {
	name := domain.AIProvider(strings.ToLower(strings.TrimSpace(provider)))
	if !name.IsValid() {
		return domain.ModelCatalog{}, domain.NewValidationError("provider", fmt.Sprintf("invalid provider %q", provider))
	}

	cfg := r.source.ProviderConfig(domain.RoleGeneration, name, "")
	catalog := domain.ModelCatalog{Provider: name, Default: cfg.Model}
	if !name.IsLocal() {
		catalog.Models = domain.KnownLLMModels()[name]
		return catalog, nil
	}

	client, err := r.ResolveGeneration(string(name))
	if err != nil {
		return domain.ModelCatalog{}, err
	}
	lister, ok := client.LLMService.(driven.ModelLister)
	if !ok {
		catalog.Models = []string{cfg.Model}
		return catalog, nil
	}
	models, err := lister.ListModels(ctx)
	if err != nil {
		return domain.ModelCatalog{}, fmt.Errorf("list %s models: %w: %v", name.Description(), domain.ErrLLMUnavailable, err)
	}
	catalog.Models = models
	return catalog, nil
}

// Default returns the default provider for a role.
func (r *ProviderRegistry) Default(role domain.ProviderRole) domain.AIProvider {
	return r.defaults[role]
}

// Close releases every cached client.
func (r *ProviderRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, svc := range r.embeddings {
		_ = svc.Close()
		delete(r.embeddings, key)
	}
	for key, svc := range r.llms {
		_ = svc.Close()
		delete(r.llms, key)
	}
	return nil
}

func (r *ProviderRegistry) configFor(role domain.ProviderRole, override *domain.ProviderOverride) (domain.ProviderConfig, error) {
	name := r.defaults[role]
	var model string
	if override != nil {
		if p := strings.ToLower(strings.TrimSpace(override.Provider)); p != "" {
			name = domain.AIProvider(p)
		}
		model = strings.TrimSpace(override.Model)
	}

	if !name.Supports(role) {
		raw := string(name)
		if override != nil && override.Provider != "" {
			raw = override.Provider
		}
		return domain.ProviderConfig{}, &domain.UnknownProviderError{Role: role, Name: raw}
	}

	cfg := r.source.ProviderConfig(role, name, model)
	if name.RequiresAPIKey() && cfg.APIKey == "" {
		return domain.ProviderConfig{}, &domain.MissingCredentialError{Provider: name}
	}
	return cfg, nil
}
