package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
	"github.com/custodia-labs/docrag/internal/core/ports/driving"
	"github.com/custodia-labs/docrag/internal/logger"
)

// Ensure the services implement their interfaces.
var (
	_ driving.GenerationService = (*GenerationService)(nil)
	_ driving.QueryService      = (*QueryService)(nil)
)

// DefaultMaxContextChars bounds the source text placed in a prompt.
const DefaultMaxContextChars = 6000

// DefaultGenerationRetryPolicy is used for answer generation.
func DefaultGenerationRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

// GenerationConfig tunes the generation service.
type GenerationConfig struct {
	// MaxContextChars is the budget, in characters, for source text.
	MaxContextChars int

	// Retry bounds provider calls.
	Retry RetryPolicy

	// MaxTokens caps the answer length. Zero uses the provider default.
	MaxTokens int

	// Temperature is passed through to the provider.
	Temperature float64
}

// GenerationService answers questions from retrieved sources.
type GenerationService struct {
	registry *ProviderRegistry
	prompts  driven.PromptStore
	cfg      GenerationConfig
}

// NewGenerationService creates a generation service. prompts may be nil.
func NewGenerationService(registry *ProviderRegistry, prompts driven.PromptStore, cfg GenerationConfig) *GenerationService {
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = DefaultMaxContextChars
	}
	return &GenerationService{
		registry: registry,
		prompts:  prompts,
		cfg:      cfg,
	}
}

// Generate produces an answer grounded in sources.
// The provider is resolved first; resolution errors are returned unchanged.
func (g *GenerationService) Generate(
	ctx context.Context,
	question string,
	sources []domain.RetrievedSource,
	override *domain.ProviderOverride,
) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.NewValidationError("question", "is required")
	}
	if len(sources) == 0 {
		return nil, domain.ErrNoRelevantDocuments
	}

	client, err := g.registry.ResolveGenerationDynamic(override)
	if err != nil {
		return nil, err
	}

	selected := SelectContext(sources, g.cfg.MaxContextChars)
	if len(selected) < len(sources) {
		logger.Debug("Context budget %d: using %d of %d sources", g.cfg.MaxContextChars, len(selected), len(sources))
	}
	prompt := BuildAnswerPrompt(loadPrompt(g.prompts, driven.PromptAnswer), question, selected)
	opts := driven.GenerateOptions{
		System:      loadPrompt(g.prompts, driven.PromptSystem),
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	}

	var answer string
	attempts, err := g.cfg.Retry.do(ctx, client.Provider, "generate", func(ctx context.Context) error {
		reply, err := client.Generate(ctx, prompt, opts)
		if err != nil {
			return err
		}
		if strings.TrimSpace(reply) == "" {
			return fmt.Errorf("%w: provider returned an empty answer", domain.ErrTransient)
		}
		answer = strings.TrimSpace(reply)
		return nil
	})
	if err != nil {
		return nil, &domain.GenerationError{Provider: client.Provider, Attempts: attempts, Err: err}
	}

	return &domain.Answer{
		Answer:       answer,
		ProviderUsed: client.Provider,
		ModelUsed:    client.ModelName(),
		SourcesUsed:  selected,
	}, nil
}

// SelectContext picks the sources that fit in budget characters, most
// relevant first. The least relevant are dropped first. A top source that
// alone exceeds the budget is truncated to it.
func SelectContext(sources []domain.RetrievedSource, budget int) []domain.RetrievedSource {
	ranked := make([]domain.RetrievedSource, len(sources))
	copy(ranked, sources)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	selected := make([]domain.RetrievedSource, 0, len(ranked))
	used := 0
	for _, s := range ranked {
		n := utf8.RuneCountInString(s.Text)
		if used+n > budget {
			if len(selected) == 0 {
				s.Text = headRunes(s.Text, budget)
				selected = append(selected, s)
			}
			break
		}
		used += n
		selected = append(selected, s)
	}
	return selected
}

// BuildAnswerPrompt renders the answer template. The output depends only
// on its inputs. Substituted values are never scanned for placeholders.
func BuildAnswerPrompt(template, question string, sources []domain.RetrievedSource) string {
	blocks := make([]string, len(sources))
	for i, s := range sources {
		blocks[i] = fmt.Sprintf("Document %d (Score: %.3f):\n%s", i+1, s.Score, s.Text)
	}
	return strings.NewReplacer(
		driven.PlaceholderContext, strings.Join(blocks, "\n\n"),
		driven.PlaceholderQuestion, question,
	).Replace(template)
}

// QueryService composes retrieval and generation.
type QueryService struct {
	registry   *ProviderRegistry
	retrieval  driving.RetrievalService
	generation driving.GenerationService
}

// NewQueryService creates a query service. The registry is used to reject
// a bad generation override before retrieval starts; it may be nil.
func NewQueryService(
	registry *ProviderRegistry,
	retrieval driving.RetrievalService,
	generation driving.GenerationService,
) *QueryService {
	return &QueryService{registry: registry, retrieval: retrieval, generation: generation}
}

// Query retrieves sources for a question and answers it.
// It returns domain.ErrNoRelevantDocuments when retrieval finds nothing.
func (q *QueryService) Query(ctx context.Context, question string, opts domain.QueryOptions) (*domain.QueryResult, error) {
	if q.registry != nil {
		if err := q.registry.Validate(domain.RoleGeneration, opts.Provider); err != nil {
			return nil, err
		}
	}

	sources, err := q.retrieval.Retrieve(ctx, question, opts.TopK, nil)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, domain.ErrNoRelevantDocuments
	}

	answer, err := q.generation.Generate(ctx, question, sources, opts.Provider)
	if err != nil {
		return nil, err
	}

	return &domain.QueryResult{
		Question:     strings.TrimSpace(question),
		Answer:       answer.Answer,
		Sources:      sources,
		ProviderUsed: answer.ProviderUsed,
		ModelUsed:    answer.ModelUsed,
	}, nil
}
