package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
	"github.com/custodia-labs/docrag/internal/core/ports/driving"
	"github.com/custodia-labs/docrag/internal/logger"
	"github.com/custodia-labs/docrag/internal/metrics"
)

// Ensure RetrievalEngine implements the interface.
var _ driving.RetrievalService = (*RetrievalEngine)(nil)

var errZeroQueryVector = errors.New("question embedded to a zero vector")

// healthCheckText is embedded by the health check to confirm the provider works end to end.
const healthCheckText = "docrag health check"

// RetrievalConfig tunes the retrieval engine.
type RetrievalConfig struct {
	// DefaultTopK is used when the caller asks for k <= 0.
	DefaultTopK int

	// HealthTimeout bounds the whole health check.
	HealthTimeout time.Duration
}

// RetrievalEngine finds chunks for a question. It searches the vector index
// first and falls back to textual search over the chunk store.
type RetrievalEngine struct {
	embedder *Embedder
	store    driven.ChunkStore
	index    driven.VectorIndex
	cfg      RetrievalConfig
}

// NewRetrievalEngine creates a new retrieval engine.
// store and index may be nil when persistence is disabled.
func NewRetrievalEngine(embedder *Embedder, store driven.ChunkStore, index driven.VectorIndex, cfg RetrievalConfig) *RetrievalEngine {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = domain.DefaultTopK
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 5 * time.Second
	}
	return &RetrievalEngine{
		embedder: embedder,
		store:    store,
		index:    index,
		cfg:      cfg,
	}
}

// Retrieve returns up to k sources ordered by score descending.
//
// The textual path runs when the vector path errors, finds nothing, or the
// question cannot be embedded. Only when both paths fail is a
// *domain.RetrievalError returned. Provider resolution errors are returned
// unchanged.
func (e *RetrievalEngine) Retrieve(
	ctx context.Context,
	question string,
	k int,
	override *domain.ProviderOverride,
) ([]domain.RetrievedSource, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.NewValidationError("question", "is required")
	}
	if k <= 0 {
		k = e.cfg.DefaultTopK
	}

	client, err := e.embedder.Resolve(override)
	if err != nil {
		return nil, err
	}

	sources, vecErr := e.vectorSearch(ctx, client, question, k)
	if vecErr == nil && len(sources) > 0 {
		metrics.RetrievalsByMethod.WithLabelValues(string(domain.MethodVector)).Inc()
		return sources, nil
	}
	if vecErr != nil {
		logger.Warn("Vector search failed, falling back to text search: %v", vecErr)
	} else {
		logger.Debug("Vector search returned no results, trying text search")
	}

	sources, textErr := e.textSearch(ctx, question, k)
	if textErr != nil {
		if vecErr != nil {
			return nil, &domain.RetrievalError{VectorErr: vecErr, TextErr: textErr}
		}
		logger.Warn("Text search failed after an empty vector search: %v", textErr)
		return []domain.RetrievedSource{}, nil
	}

	metrics.RetrievalsByMethod.WithLabelValues(string(domain.MethodText)).Inc()
	return sources, nil
}

func (e *RetrievalEngine) vectorSearch(
	ctx context.Context,
	client *EmbeddingClient,
	question string,
	k int,
) ([]domain.RetrievedSource, error) {
	if e.index == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}
	if e.store == nil {
		return nil, &domain.StoreUnavailableError{Op: "load chunks"}
	}

	vec, err := e.embedder.EmbedQuery(ctx, client, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if isZeroVector(vec) {
		return nil, errZeroQueryVector
	}

	hits, err := e.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	chunks, err := e.store.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	byID := make(map[string]domain.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	sources := make([]domain.RetrievedSource, 0, len(hits))
	for _, h := range hits {
		c, ok := byID[h.ChunkID]
		if !ok {
			logger.Debug("Vector hit %s has no stored chunk, skipping", h.ChunkID)
			continue
		}
		sources = append(sources, domain.RetrievedSource{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Text:       c.Text,
			Score:      h.Similarity,
			Method:     domain.MethodVector,
		})
	}
	sortByScore(sources)
	return sources, nil
}

func (e *RetrievalEngine) textSearch(ctx context.Context, question string, k int) ([]domain.RetrievedSource, error) {
	if e.store == nil {
		return nil, &domain.StoreUnavailableError{Op: "text search"}
	}
	hits, err := e.store.SearchText(ctx, question, k)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}

	sources := make([]domain.RetrievedSource, 0, len(hits))
	for _, h := range hits {
		sources = append(sources, domain.RetrievedSource{
			ChunkID:    h.Chunk.ID,
			DocumentID: h.Chunk.DocumentID,
			Text:       h.Chunk.Text,
			Score:      h.Score,
			Method:     domain.MethodText,
		})
	}
	sortByScore(sources)
	return sources, nil
}

// HealthCheck reports provider reachability and store state. It never
// blocks longer than the configured health timeout.
func (e *RetrievalEngine) HealthCheck(ctx context.Context, override *domain.ProviderOverride) domain.HealthReport {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.HealthTimeout)
	defer cancel()

	report := domain.HealthReport{
		Provider: e.providerHealth(ctx, override),
		Store:    e.storeHealth(ctx),
	}
	report.Status = domain.HealthOK
	if report.Provider.Status != domain.HealthOK || report.Store.Status != domain.HealthOK {
		report.Status = domain.HealthDegraded
	}
	return report
}

func (e *RetrievalEngine) providerHealth(ctx context.Context, override *domain.ProviderOverride) domain.ProviderHealth {
	client, err := e.embedder.Resolve(override)
	if err != nil {
		return domain.ProviderHealth{Status: domain.HealthUnavailable, Error: err.Error()}
	}

	health := domain.ProviderHealth{
		Name:   client.Provider,
		Model:  client.ModelName(),
		Status: domain.HealthOK,
	}
	if err := client.Ping(ctx); err != nil {
		health.Status = domain.HealthUnavailable
		health.Error = err.Error()
		return health
	}
	vec, err := client.Embed(ctx, healthCheckText)
	if err != nil {
		health.Status = domain.HealthUnavailable
		health.Error = err.Error()
		return health
	}
	health.Dimensions = len(vec)
	return health
}

func (e *RetrievalEngine) storeHealth(ctx context.Context) domain.StoreHealth {
	if e.store == nil {
		return domain.StoreHealth{Status: domain.HealthUnavailable, Error: domain.ErrStoreUnavailable.Error()}
	}

	health := domain.StoreHealth{Status: domain.HealthOK}
	if err := e.store.Ping(ctx); err != nil {
		health.Status = domain.HealthUnavailable
		health.Error = err.Error()
		return health
	}

	count, err := e.store.CountChunks(ctx)
	if err != nil {
		health.Status = domain.HealthUnavailable
		health.Error = err.Error()
		return health
	}
	health.ChunkCount = count

	if e.index == nil {
		return health
	}
	spec, err := e.index.Describe(ctx)
	switch {
	case err != nil:
		health.Status = domain.HealthDegraded
		health.Error = err.Error()
	case spec != nil:
		health.IndexExists = true
		health.IndexName = spec.Name
		health.IndexDimensions = spec.Dimensions
	}
	return health
}

// isZeroVector reports whether v has no direction, which makes every
// cosine score zero.
func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// sortByScore orders sources by score descending, keeping input order for ties.
func sortByScore(sources []domain.RetrievedSource) {
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Score > sources[j].Score
	})
}
