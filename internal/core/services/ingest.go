package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
	"github.com/custodia-labs/docrag/internal/core/ports/driving"
	"github.com/custodia-labs/docrag/internal/logger"
	"github.com/custodia-labs/docrag/internal/metrics"
)

// Ensure IngestionPipeline implements the interface.
var _ driving.IngestService = (*IngestionPipeline)(nil)

// Ingestion defaults.
const (
	DefaultIndexName         = "document_embeddings"
	DefaultSimilarity        = "cosine"
	DefaultSchemaSampleChars = 4000
)

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	// IndexName is the vector index chunks are written to.
	IndexName string

	// SchemaSampleChars is how much of the document schema inference sees.
	SchemaSampleChars int
}

// IngestionPipeline turns an upload into persisted, embedded chunks.
//
// The store and the schema service are optional. Without a store every
// ingestion ends Degraded; without a schema service InferSchema is ignored.
type IngestionPipeline struct {
	extractors driven.ExtractorRegistry
	chunker    driven.PostProcessorPipeline
	embedder   *Embedder
	store      driven.ChunkStore
	index      driven.VectorIndex
	schema     driving.SchemaService
	cfg        IngestConfig
	now        func() time.Time
}

// NewIngestionPipeline creates a new ingestion pipeline.
func NewIngestionPipeline(
	extractors driven.ExtractorRegistry,
	chunker driven.PostProcessorPipeline,
	embedder *Embedder,
	store driven.ChunkStore,
	index driven.VectorIndex,
	schema driving.SchemaService,
	cfg IngestConfig,
) *IngestionPipeline {
	if cfg.IndexName == "" {
		cfg.IndexName = DefaultIndexName
	}
	if cfg.SchemaSampleChars <= 0 {
		cfg.SchemaSampleChars = DefaultSchemaSampleChars
	}
	return &IngestionPipeline{
		extractors: extractors,
		chunker:    chunker,
		embedder:   embedder,
		store:      store,
		index:      index,
		schema:     schema,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Supports reports whether a filename has an extractor.
func (p *IngestionPipeline) Supports(filename string) bool {
	return p.extractors != nil && p.extractors.Supports(filename)
}

// Ingest runs one document through the pipeline. Steps for a single
// document are strictly sequential; separate calls may run concurrently.
//
//nolint:gocyclo // Orchestration function with necessary sequential steps
func (p *IngestionPipeline) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	start := p.now()
	res := &domain.IngestResult{
		DocumentID: uuid.NewString(),
		Filename:   req.Filename,
	}
	p.transition(res, domain.IngestReceived)

	// 1. Resolve the embedding provider before doing any work
	client, err := p.embedder.Resolve(req.EmbeddingProvider)
	if err != nil {
		return nil, p.fail(res, "resolve embedding provider", err)
	}
	res.ProviderUsed = client.Provider

	// 2. Extract text
	text, err := p.extract(ctx, req)
	if err != nil {
		return nil, p.fail(res, "extract", err)
	}

	// 3. Chunk
	doc := domain.Document{
		ID:         res.DocumentID,
		Filename:   req.Filename,
		FileType:   domain.FileTypeOf(req.Filename),
		IngestedAt: start,
	}
	chunks, err := p.chunker.Process(ctx, &doc, text)
	if err != nil {
		return nil, p.fail(res, "chunk", err)
	}
	if len(chunks) == 0 {
		return nil, p.fail(res, "chunk", domain.NewValidationError("file", "document produced no chunks"))
	}
	res.ChunksCreated = len(chunks)
	p.transition(res, domain.IngestChunked)

	// 4. Embed every chunk in one batch
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, client, texts)
	if err != nil {
		return nil, p.fail(res, "embed", err)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
		chunks[i].CreatedAt = start
	}
	p.transition(res, domain.IngestEmbedded)

	// 5. Persist document, chunks and NEXT edges atomically
	if err := p.persist(ctx, doc, chunks); err != nil {
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			return nil, p.fail(res, "persist", err)
		}
		p.degrade(res, err)
	} else {
		p.transition(res, domain.IngestPersisted)

		// 6. Ensure the vector index and write the vectors
		if err := p.indexChunks(ctx, p.embedder.Dimensions(client), chunks); err != nil {
			if !isUnavailable(err) {
				return nil, p.fail(res, "index", err)
			}
			p.degrade(res, err)
		}
	}

	// 7. Optional schema suggestion, never fatal
	if req.InferSchema && p.schema != nil {
		schema := p.schema.Infer(ctx, domain.SchemaRequest{
			Text:             headRunes(text, p.cfg.SchemaSampleChars),
			SamplePercentage: floatPtr(100),
		})
		res.Schema = &schema
	}

	if !res.Degraded {
		p.transition(res, domain.IngestComplete)
	}
	res.ElapsedMS = float64(p.now().Sub(start).Microseconds()) / 1000
	metrics.IngestionsCompleted.WithLabelValues(string(res.State)).Inc()
	metrics.ChunksIngested.Add(float64(res.ChunksCreated))

	logger.Info("Ingested %s: %d chunks, state %s", req.Filename, res.ChunksCreated, res.State)
	return res, nil
}

func (p *IngestionPipeline) extract(ctx context.Context, req domain.IngestRequest) (string, error) {
	if strings.TrimSpace(req.Filename) == "" {
		return "", domain.NewValidationError("filename", "is required")
	}

	text := req.Text
	if text == "" {
		if p.extractors == nil {
			return "", fmt.Errorf("%w: no extractors configured", domain.ErrUnsupportedFileType)
		}
		var err error
		text, err = p.extractors.Extract(ctx, req.Filename, req.Content)
		if err != nil {
			return "", err
		}
	}

	if strings.TrimSpace(text) == "" {
		return "", domain.NewValidationError("file", "document contains no extractable text")
	}
	return text, nil
}

func (p *IngestionPipeline) persist(ctx context.Context, doc domain.Document, chunks []domain.Chunk) error {
	if p.store == nil {
		return &domain.StoreUnavailableError{Op: "save document"}
	}
	return p.store.SaveDocument(ctx, doc, chunks)
}

func (p *IngestionPipeline) indexChunks(ctx context.Context, dims int, chunks []domain.Chunk) error {
	if p.index == nil {
		logger.Debug("No vector index configured, skipping index step")
		return nil
	}
	created, err := p.index.EnsureIndex(ctx, driven.IndexSpec{
		Name:       p.cfg.IndexName,
		Dimensions: dims,
		Similarity: DefaultSimilarity,
	})
	if err != nil {
		return fmt.Errorf("ensure index %s: %w", p.cfg.IndexName, err)
	}
	if created {
		logger.Info("Created vector index %s (%d dimensions)", p.cfg.IndexName, dims)
	}
	if err := p.index.Upsert(ctx, chunks); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	return nil
}

func (p *IngestionPipeline) transition(res *domain.IngestResult, state domain.IngestState) {
	logger.Debug("ingest %s (%s): %s -> %s", res.DocumentID, res.Filename, res.State, state)
	res.State = state
}

func (p *IngestionPipeline) degrade(res *domain.IngestResult, cause error) {
	logger.Warn("Ingestion of %s degraded: %v", res.Filename, cause)
	res.Degraded = true
	res.DegradedReason = cause.Error()
	p.transition(res, domain.IngestDegraded)
}

func (p *IngestionPipeline) fail(res *domain.IngestResult, step string, err error) error {
	p.transition(res, domain.IngestFailed)
	metrics.IngestionsCompleted.WithLabelValues(string(domain.IngestFailed)).Inc()
	logger.Debug("ingest %s failed at %s: %v", res.Filename, step, err)
	return fmt.Errorf("%s: %w", step, err)
}

func isUnavailable(err error) bool {
	return errors.Is(err, domain.ErrStoreUnavailable) || errors.Is(err, domain.ErrVectorIndexUnavailable)
}

// headRunes returns at most n runes of s.
func headRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func floatPtr(f float64) *float64 { return &f }
