package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
)

func source(text string, score float64) domain.RetrievedSource {
	return domain.RetrievedSource{Text: text, Score: score, Method: domain.MethodVector}
}

func TestSelectContext(t *testing.T) {
	tests := []struct {
		name    string
		sources []domain.RetrievedSource
		budget  int
		want    []string
	}{
		{
			name:    "all fit",
			sources: []domain.RetrievedSource{source("aaaa", 0.5), source("bbbb", 0.9)},
			budget:  100,
			want:    []string{"bbbb", "aaaa"},
		},
		{
			name:    "least relevant dropped first",
			sources: []domain.RetrievedSource{source("low", 0.1), source("high", 0.9), source("mid", 0.5)},
			budget:  7,
			want:    []string{"high", "mid"},
		},
		{
			name:    "stops at first source that does not fit",
			sources: []domain.RetrievedSource{source("aaaaaa", 0.9), source("bbbbbb", 0.8), source("c", 0.7)},
			budget:  8,
			want:    []string{"aaaaaa"},
		},
		{
			name:    "oversized top source truncated",
			sources: []domain.RetrievedSource{source("abcdefghij", 0.9), source("xy", 0.1)},
			budget:  4,
			want:    []string{"abcd"},
		},
		{
			name:    "ties keep input order",
			sources: []domain.RetrievedSource{source("one", 0.5), source("two", 0.5)},
			budget:  100,
			want:    []string{"one", "two"},
		},
		{
			name:    "budget counts runes",
			sources: []domain.RetrievedSource{source("ééé", 0.9), source("üü", 0.8)},
			budget:  5,
			want:    []string{"ééé", "üü"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectContext(tt.sources, tt.budget)
			texts := make([]string, len(got))
			for i, s := range got {
				texts[i] = s.Text
			}
			assert.Equal(t, tt.want, texts)
		})
	}
}

func TestSelectContext_DoesNotMutateInput(t *testing.T) {
	in := []domain.RetrievedSource{source("low", 0.1), source("high", 0.9)}
	SelectContext(in, 2)
	assert.Equal(t, "low", in[0].Text)
	assert.Equal(t, "high", in[1].Text)
}

func TestBuildAnswerPrompt(t *testing.T) {
	sources := []domain.RetrievedSource{source("Paris is in France.", 0.91234), source("Lyon too.", 0.5)}

	got := BuildAnswerPrompt("CTX[{{context}}] Q[{{question}}]", "Where is Paris?", sources)
	want := "CTX[Document 1 (Score: 0.912):\nParis is in France.\n\nDocument 2 (Score: 0.500):\nLyon too.] Q[Where is Paris?]"
	assert.Equal(t, want, got)

	// Deterministic
	assert.Equal(t, got, BuildAnswerPrompt("CTX[{{context}}] Q[{{question}}]", "Where is Paris?", sources))
}

func TestBuildAnswerPrompt_LiteralPercent(t *testing.T) {
	sources := []domain.RetrievedSource{source("Go is a language.", 0.9)}

	got := BuildAnswerPrompt("Answer using 100% of the facts below.\n{{context}}\nQUESTION: {{question}} %s", "What is Go?", sources)

	want := "Answer using 100% of the facts below.\nDocument 1 (Score: 0.900):\nGo is a language.\nQUESTION: What is Go? %s"
	assert.Equal(t, want, got)
}

func TestBuildAnswerPrompt_ValuesAreNotExpanded(t *testing.T) {
	sources := []domain.RetrievedSource{source("see {{question}}", 0.9)}

	got := BuildAnswerPrompt("{{context}}|{{question}}", "why {{context}}?", sources)

	assert.Equal(t, "Document 1 (Score: 0.900):\nsee {{question}}|why {{context}}?", got)
}

func newTestGeneration(llm *mockLLMService, prompts driven.PromptStore, cfg GenerationConfig) *GenerationService {
	r, _ := newTestRegistry(newMockEmbedding(4), llm)
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = fastRetry(2)
	}
	return NewGenerationService(r, prompts, cfg)
}

func TestGenerate_Success(t *testing.T) {
	llm := &mockLLMService{model: "llama3", replies: []string{"  Paris is in France.  "}}
	g := newTestGeneration(llm, mockPromptStore{
		driven.PromptAnswer: "C:{{context}}|Q:{{question}}",
		driven.PromptSystem: "be brief",
	}, GenerationConfig{MaxTokens: 256, Temperature: 0.2})

	answer, err := g.Generate(context.Background(), "Where is Paris?", []domain.RetrievedSource{source("Paris is in France.", 0.9)}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Paris is in France.", answer.Answer)
	assert.Equal(t, domain.AIProviderOllama, answer.ProviderUsed)
	assert.Equal(t, "llama3", answer.ModelUsed)
	assert.Len(t, answer.SourcesUsed, 1)

	require.Len(t, llm.prompts, 1)
	assert.Equal(t, "C:Document 1 (Score: 0.900):\nParis is in France.|Q:Where is Paris?", llm.prompts[0])
	assert.Equal(t, "be brief", llm.opts[0].System)
	assert.Equal(t, 256, llm.opts[0].MaxTokens)
	assert.Equal(t, 0.2, llm.opts[0].Temperature)
}

func TestGenerate_DefaultPromptUsedWithoutStore(t *testing.T) {
	llm := &mockLLMService{replies: []string{"ok"}}
	g := newTestGeneration(llm, nil, GenerationConfig{})

	_, err := g.Generate(context.Background(), "q?", []domain.RetrievedSource{source("ctx", 1)}, nil)
	require.NoError(t, err)

	assert.Contains(t, llm.prompts[0], "CONTEXT:\nDocument 1 (Score: 1.000):\nctx")
	assert.Contains(t, llm.prompts[0], "QUESTION: q?")
	assert.Equal(t, driven.DefaultPrompt(driven.PromptSystem), llm.opts[0].System)
}

func TestGenerate_RespectsContextBudget(t *testing.T) {
	llm := &mockLLMService{replies: []string{"ok"}}
	g := newTestGeneration(llm, mockPromptStore{driven.PromptAnswer: "{{context}}|{{question}}"}, GenerationConfig{MaxContextChars: 10})

	answer, err := g.Generate(context.Background(), "q", []domain.RetrievedSource{
		source("0123456789", 0.9),
		source("dropped", 0.1),
	}, nil)
	require.NoError(t, err)

	assert.Len(t, answer.SourcesUsed, 1)
	assert.NotContains(t, llm.prompts[0], "dropped")
}

func TestGenerate_RetriesTransientThenSucceeds(t *testing.T) {
	llm := &mockLLMService{
		errs:    []error{fmt.Errorf("%w: 429", domain.ErrTransient), fmt.Errorf("%w: 503", domain.ErrTransient)},
		replies: []string{"answer"},
	}
	g := newTestGeneration(llm, nil, GenerationConfig{})

	answer, err := g.Generate(context.Background(), "q", []domain.RetrievedSource{source("ctx", 1)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "answer", answer.Answer)
	assert.Equal(t, 3, llm.callCount())
}

func TestGenerate_GenerationErrorAfterRetries(t *testing.T) {
	transient := fmt.Errorf("%w: 503", domain.ErrTransient)
	llm := &mockLLMService{errs: []error{transient, transient, transient, transient}}
	g := newTestGeneration(llm, nil, GenerationConfig{})

	_, err := g.Generate(context.Background(), "q", []domain.RetrievedSource{source("ctx", 1)}, nil)

	var gerr *domain.GenerationError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, domain.AIProviderOllama, gerr.Provider)
	assert.Equal(t, 3, gerr.Attempts)
	assert.Equal(t, 3, llm.callCount())
	assert.Equal(t, domain.CodeGeneration, domain.ErrorCode(err))
}

func TestGenerate_PermanentErrorNotRetried(t *testing.T) {
	llm := &mockLLMService{errs: []error{errors.New("invalid api key")}}
	g := newTestGeneration(llm, nil, GenerationConfig{})

	_, err := g.Generate(context.Background(), "q", []domain.RetrievedSource{source("ctx", 1)}, nil)

	var gerr *domain.GenerationError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, 1, llm.callCount())
}

func TestGenerate_EmptyAnswerIsRetried(t *testing.T) {
	llm := &mockLLMService{replies: []string{"   "}}
	g := newTestGeneration(llm, nil, GenerationConfig{})

	_, err := g.Generate(context.Background(), "q", []domain.RetrievedSource{source("ctx", 1)}, nil)

	var gerr *domain.GenerationError
	require.True(t, errors.As(err, &gerr))
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, 3, llm.callCount())
}

func TestGenerate_InputErrors(t *testing.T) {
	llm := &mockLLMService{replies: []string{"ok"}}
	g := newTestGeneration(llm, nil, GenerationConfig{})
	ctx := context.Background()
	sources := []domain.RetrievedSource{source("ctx", 1)}

	_, err := g.Generate(ctx, " ", sources, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = g.Generate(ctx, "q", nil, nil)
	assert.ErrorIs(t, err, domain.ErrNoRelevantDocuments)

	_, err = g.Generate(ctx, "q", sources, &domain.ProviderOverride{Provider: "anthropic"})
	var missing *domain.MissingCredentialError
	assert.True(t, errors.As(err, &missing))

	assert.Equal(t, 0, llm.callCount())
}

func TestGenerate_OverrideSelectsProvider(t *testing.T) {
	llm := &mockLLMService{replies: []string{"ok"}}
	g := newTestGeneration(llm, nil, GenerationConfig{})

	answer, err := g.Generate(context.Background(), "q", []domain.RetrievedSource{source("ctx", 1)},
		&domain.ProviderOverride{Provider: "openai"})
	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderOpenAI, answer.ProviderUsed)
}

// stubRetrieval returns fixed sources and counts calls.
type stubRetrieval struct {
	sources []domain.RetrievedSource
	err     error
	calls   int
	lastK   int
}

func (s *stubRetrieval) Retrieve(_ context.Context, _ string, k int, _ *domain.ProviderOverride) ([]domain.RetrievedSource, error) {
	s.calls++
	s.lastK = k
	return s.sources, s.err
}

func (s *stubRetrieval) HealthCheck(context.Context, *domain.ProviderOverride) domain.HealthReport {
	return domain.HealthReport{Status: domain.HealthOK}
}

func TestQuery_AnswersFromRetrievedSources(t *testing.T) {
	llm := &mockLLMService{replies: []string{"Paris."}}
	r, _ := newTestRegistry(newMockEmbedding(4), llm)
	retrieval := &stubRetrieval{sources: []domain.RetrievedSource{source("Paris is in France.", 0.8)}}
	q := NewQueryService(r, retrieval, NewGenerationService(r, nil, GenerationConfig{Retry: fastRetry(1)}))

	res, err := q.Query(context.Background(), "  Where is Paris? ", domain.QueryOptions{TopK: 3})
	require.NoError(t, err)

	assert.Equal(t, "Where is Paris?", res.Question)
	assert.Equal(t, "Paris.", res.Answer)
	assert.Len(t, res.Sources, 1)
	assert.Equal(t, domain.AIProviderOllama, res.ProviderUsed)
	assert.Equal(t, 3, retrieval.lastK)
}

func TestQuery_NoSourcesIsNotFound(t *testing.T) {
	llm := &mockLLMService{replies: []string{"unused"}}
	r, _ := newTestRegistry(newMockEmbedding(4), llm)
	q := NewQueryService(r, &stubRetrieval{}, NewGenerationService(r, nil, GenerationConfig{}))

	_, err := q.Query(context.Background(), "anything", domain.QueryOptions{})

	assert.ErrorIs(t, err, domain.ErrNoRelevantDocuments)
	assert.Equal(t, domain.CodeNotFound, domain.ErrorCode(err))
	assert.Equal(t, 0, llm.callCount())
}

func TestQuery_BadOverrideRejectedBeforeRetrieval(t *testing.T) {
	r, f := newTestRegistry(newMockEmbedding(4), &mockLLMService{})
	retrieval := &stubRetrieval{sources: []domain.RetrievedSource{source("x", 1)}}
	q := NewQueryService(r, retrieval, NewGenerationService(r, nil, GenerationConfig{}))

	_, err := q.Query(context.Background(), "q", domain.QueryOptions{
		Provider: &domain.ProviderOverride{Provider: "mistral"},
	})

	var unknown *domain.UnknownProviderError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, 0, retrieval.calls)
	assert.Equal(t, 0, f.buildCount())
}

func TestQuery_RetrievalErrorPropagates(t *testing.T) {
	r, _ := newTestRegistry(newMockEmbedding(4), &mockLLMService{})
	rerr := &domain.RetrievalError{VectorErr: errors.New("v"), TextErr: errors.New("t")}
	q := NewQueryService(r, &stubRetrieval{err: rerr}, NewGenerationService(r, nil, GenerationConfig{}))

	_, err := q.Query(context.Background(), "q", domain.QueryOptions{})
	assert.True(t, strings.HasPrefix(err.Error(), "retrieval failed"))
	assert.Equal(t, domain.CodeRetrieval, domain.ErrorCode(err))
}
