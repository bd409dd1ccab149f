package driving

import (
	"context"

	"github.com/custodia-labs/docrag/internal/core/domain"
)

// RetrievalService finds chunks relevant to a question.
type RetrievalService interface {
	// Retrieve returns up to k sources ordered by score descending.
	// The override selects the embedding provider; nil uses the default.
	Retrieve(ctx context.Context, question string, k int,
		override *domain.ProviderOverride) ([]domain.RetrievedSource, error)

	// HealthCheck reports provider reachability and store state.
	HealthCheck(ctx context.Context, override *domain.ProviderOverride) domain.HealthReport
}

// GenerationService answers a question from retrieved sources.
type GenerationService interface {
	// Generate produces an answer grounded in sources.
	Generate(ctx context.Context, question string, sources []domain.RetrievedSource,
		override *domain.ProviderOverride) (*domain.Answer, error)
}

// QueryService composes retrieval and generation.
type QueryService interface {
	// Query retrieves sources for a question and generates an answer.
	Query(ctx context.Context, question string, opts domain.QueryOptions) (*domain.QueryResult, error)
}
