package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
	"github.com/custodia-labs/docrag/internal/core/ports/driving"
	"github.com/custodia-labs/docrag/internal/logger"
)

// Ensure AdminService implements the interface.
var _ driving.StoreAdmin = (*AdminService)(nil)

// AdminService maintains the chunk store and the vector index together,
// so a document never outlives its vectors or the other way round.
type AdminService struct {
	embedder  *Embedder
	store     driven.ChunkStore
	index     driven.VectorIndex
	indexName string
}

// NewAdminService creates an admin service. store and index may be nil when
// persistence is disabled; every operation then reports the store unavailable.
func NewAdminService(embedder *Embedder, store driven.ChunkStore, index driven.VectorIndex, indexName string) *AdminService {
	if indexName == "" {
		indexName = DefaultIndexName
	}
	return &AdminService{
		embedder:  embedder,
		store:     store,
		index:     index,
		indexName: indexName,
	}
}

// ListDocuments returns stored documents, newest first.
func (s *AdminService) ListDocuments(ctx context.Context) ([]domain.DocumentInfo, error) {
	if s.store == nil {
		return nil, &domain.StoreUnavailableError{Op: "list documents"}
	}
	return s.store.ListDocuments(ctx)
}

// ListChunks returns up to limit chunks of a document. limit <= 0 returns all.
func (s *AdminService) ListChunks(ctx context.Context, documentID string, limit int) ([]domain.Chunk, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, domain.NewValidationError("document_id", "is required")
	}
	if s.store == nil {
		return nil, &domain.StoreUnavailableError{Op: "list chunks"}
	}
	return s.store.ListChunks(ctx, documentID, limit)
}

// DeleteDocument removes the document from the store, then its vectors.
// Vector removal failures are only logged; hits without a stored chunk are
// skipped at query time.
func (s *AdminService) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return 0, domain.NewValidationError("document_id", "is required")
	}
	if s.store == nil {
		return 0, &domain.StoreUnavailableError{Op: "delete document"}
	}

	ids, err := s.store.DeleteDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if s.index != nil && len(ids) > 0 {
		if err := s.index.Delete(ctx, ids); err != nil {
			logger.Warn("Deleted document %s but not its %d vectors: %v", documentID, len(ids), err)
		}
	}
	logger.Info("Deleted document %s (%d chunks)", documentID, len(ids))
	return len(ids), nil
}

// Status counts what is stored and describes the vector index.
func (s *AdminService) Status(ctx context.Context) (domain.StoreStatus, error) {
	if s.store == nil {
		return domain.StoreStatus{}, &domain.StoreUnavailableError{Op: "status"}
	}

	var status domain.StoreStatus
	var err error
	if status.Documents, err = s.store.CountDocuments(ctx); err != nil {
		return domain.StoreStatus{}, err
	}
	if status.Chunks, err = s.store.CountChunks(ctx); err != nil {
		return domain.StoreStatus{}, err
	}
	if s.index == nil {
		return status, nil
	}

	spec, err := s.index.Describe(ctx)
	if err != nil {
		return domain.StoreStatus{}, fmt.Errorf("describe index: %w", err)
	}
	if spec != nil {
		status.VectorIndexExists = true
		status.IndexName = spec.Name
		status.IndexDimensions = spec.Dimensions
	}
	return status, nil
}

// Reindex drops the vector index and rebuilds it from the embeddings kept
// with the stored chunks. No provider is called unless nothing is stored
// and the index did not exist, in which case the default embedding
// provider decides the width of the empty index.
//
// The width is the one most stored embeddings have. Chunks without an
// embedding or with another width are skipped and counted.
func (s *AdminService) Reindex(ctx context.Context) (*domain.ReindexResult, error) {
	if s.store == nil {
		return nil, &domain.StoreUnavailableError{Op: "reindex"}
	}
	if s.index == nil {
		return nil, fmt.Errorf("reindex: %w", domain.ErrVectorIndexUnavailable)
	}

	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	byDoc := make([][]domain.Chunk, 0, len(docs))
	for _, d := range docs {
		chunks, err := s.store.ListChunks(ctx, d.ID, 0)
		if err != nil {
			return nil, fmt.Errorf("load chunks of %s: %w", d.ID, err)
		}
		byDoc = append(byDoc, chunks)
	}

	previous, err := s.index.Describe(ctx)
	if err != nil {
		return nil, fmt.Errorf("describe index: %w", err)
	}
	dims, err := s.reindexWidth(byDoc, previous)
	if err != nil {
		return nil, err
	}

	if err := s.index.Drop(ctx); err != nil {
		return nil, fmt.Errorf("drop index %s: %w", s.indexName, err)
	}
	if _, err := s.index.EnsureIndex(ctx, driven.IndexSpec{
		Name:       s.indexName,
		Dimensions: dims,
		Similarity: DefaultSimilarity,
	}); err != nil {
		return nil, fmt.Errorf("ensure index %s: %w", s.indexName, err)
	}

	res := &domain.ReindexResult{IndexName: s.indexName, Dimensions: dims, Documents: len(docs)}
	for _, chunks := range byDoc {
		batch := make([]domain.Chunk, 0, len(chunks))
		for _, c := range chunks {
			if len(c.Embedding) != dims {
				res.ChunksSkipped++
				continue
			}
			batch = append(batch, c)
		}
		if err := s.index.Upsert(ctx, batch); err != nil {
			return nil, fmt.Errorf("upsert vectors: %w", err)
		}
		res.ChunksIndexed += len(batch)
	}

	logger.Info("Reindexed %s (%d dimensions): %d chunks indexed, %d skipped",
		s.indexName, dims, res.ChunksIndexed, res.ChunksSkipped)
	return res, nil
}

func (s *AdminService) reindexWidth(byDoc [][]domain.Chunk, previous *driven.IndexSpec) (int, error) {
	counts := make(map[int]int)
	best, bestCount := 0, 0
	for _, chunks := range byDoc {
		for _, c := range chunks {
			n := len(c.Embedding)
			if n == 0 {
				continue
			}
			counts[n]++
			if counts[n] > bestCount {
				best, bestCount = n, counts[n]
			}
		}
	}
	if best > 0 {
		return best, nil
	}
	if previous != nil && previous.Dimensions > 0 {
		return previous.Dimensions, nil
	}

	if s.embedder == nil {
		return 0, domain.NewValidationError("dimensions", "nothing stored to take the index width from")
	}
	client, err := s.embedder.Resolve(nil)
	if err != nil {
		return 0, err
	}
	return s.embedder.Dimensions(client), nil
}

// Clear drops the vector index, then deletes every document and chunk.
func (s *AdminService) Clear(ctx context.Context) (*domain.ClearResult, error) {
	status, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}
	if s.index != nil {
		if err := s.index.Drop(ctx); err != nil {
			return nil, fmt.Errorf("drop index %s: %w", s.indexName, err)
		}
	}
	if err := s.store.Clear(ctx); err != nil {
		return nil, err
	}

	logger.Info("Cleared store: %d documents, %d chunks", status.Documents, status.Chunks)
	return &domain.ClearResult{DocumentsDeleted: status.Documents, ChunksDeleted: status.Chunks}, nil
}
