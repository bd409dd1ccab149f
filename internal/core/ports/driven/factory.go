package driven

import "github.com/custodia-labs/docrag/internal/core/domain"

// ProviderFactory builds provider clients from configuration.
// Construction must not perform network calls.
type ProviderFactory interface {
	// NewEmbedding builds an embedding client.
	NewEmbedding(cfg domain.ProviderConfig) (EmbeddingService, error)

	// NewLLM builds a generation client.
	NewLLM(cfg domain.ProviderConfig) (LLMService, error)
}
