// Package ai builds provider clients from configuration.
package ai

import (
	"context"
	"fmt"
	"time"

	ollamaembed "github.com/custodia-labs/docrag/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/docrag/internal/adapters/driven/embedding/openai"
	anthropicllm "github.com/custodia-labs/docrag/internal/adapters/driven/llm/anthropic"
	geminillm "github.com/custodia-labs/docrag/internal/adapters/driven/llm/gemini"
	ollamallm "github.com/custodia-labs/docrag/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/docrag/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// Ensure Factory implements the interface.
var _ driven.ProviderFactory = (*Factory)(nil)

// Factory constructs HTTP provider clients. Construction never touches the network.
type Factory struct{}

// NewFactory creates a provider factory.
func NewFactory() *Factory {
	return &Factory{}
}

// NewEmbedding creates the embedding client for cfg.Name.
func (f *Factory) NewEmbedding(cfg domain.ProviderConfig) (driven.EmbeddingService, error) {
	switch cfg.Name {
	case domain.AIProviderOllama:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			Dimensions: cfg.Dimensions,
		}), nil

	case domain.AIProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, &domain.MissingCredentialError{Provider: cfg.Name}
		}
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			Dimensions: cfg.Dimensions,
		})

	default:
		// Anthropic and Gemini are wired for generation only.
		return nil, &domain.UnknownProviderError{Role: domain.RoleEmbedding, Name: string(cfg.Name)}
	}
}

// NewLLM creates the generation client for cfg.Name.
func (f *Factory) NewLLM(cfg domain.ProviderConfig) (driven.LLMService, error) {
	if cfg.Name.RequiresAPIKey() && cfg.APIKey == "" {
		return nil, &domain.MissingCredentialError{Provider: cfg.Name}
	}

	switch cfg.Name {
	case domain.AIProviderOllama:
		return ollamallm.NewLLMService(ollamallm.LLMConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil

	case domain.AIProviderOpenAI:
		return openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})

	case domain.AIProviderAnthropic:
		return anthropicllm.NewLLMService(anthropicllm.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})

	case domain.AIProviderGemini:
		return geminillm.NewLLMService(geminillm.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})

	default:
		return nil, &domain.UnknownProviderError{Role: domain.RoleGeneration, Name: string(cfg.Name)}
	}
}

// Pinger is any client with a connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks a client's connectivity with a short timeout.
func Ping(ctx context.Context, p Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("service unreachable: %w", err)
	}
	return nil
}
