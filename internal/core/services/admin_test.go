package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memstore "github.com/custodia-labs/docrag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
)

type adminFixture struct {
	admin *AdminService
	store *memstore.Store
	index *memstore.VectorIndex
	emb   *mockEmbeddingService
}

func newAdminFixture(t *testing.T) adminFixture {
	t.Helper()
	emb := newMockEmbedding(3)
	registry, _ := newTestRegistry(emb, &mockLLMService{})
	embedder := NewEmbedder(registry, EmbedderConfig{Retry: fastRetry(0)})
	store := memstore.NewStore()
	index := memstore.NewVectorIndex(DefaultIndexName)
	return adminFixture{
		admin: NewAdminService(embedder, store, index, ""),
		store: store,
		index: index,
		emb:   emb,
	}
}

// seed saves a document whose chunks carry unit vectors of width dims and
// indexes them the way ingestion does.
func (f adminFixture) seed(t *testing.T, docID string, dims int, texts ...string) []domain.Chunk {
	t.Helper()
	ctx := context.Background()
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		vec := make([]float32, dims)
		vec[i%dims] = 1
		chunks[i] = domain.Chunk{ID: domain.ChunkID(docID, i), DocumentID: docID, Text: text, Index: i, Embedding: vec}
	}
	doc := domain.Document{ID: docID, Filename: docID + ".txt", FileType: domain.FileTypeText, IngestedAt: time.Now()}
	require.NoError(t, f.store.SaveDocument(ctx, doc, chunks))
	_, err := f.index.EnsureIndex(ctx, driven.IndexSpec{Dimensions: dims})
	require.NoError(t, err)
	require.NoError(t, f.index.Upsert(ctx, chunks))
	return chunks
}

func TestAdmin_Status(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	status, err := f.admin.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StoreStatus{}, status)

	f.seed(t, "d1", 3, "one", "two")
	f.seed(t, "d2", 3, "three")

	status, err = f.admin.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Documents)
	assert.Equal(t, 3, status.Chunks)
	assert.True(t, status.VectorIndexExists)
	assert.Equal(t, DefaultIndexName, status.IndexName)
	assert.Equal(t, 3, status.IndexDimensions)
}

func TestAdmin_ListDocumentsAndChunks(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	f.seed(t, "d1", 3, "one", "two", "three")

	docs, err := f.admin.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 3, docs[0].ChunkCount)

	chunks, err := f.admin.ListChunks(ctx, "d1", 2)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "one", chunks[0].Text)

	_, err = f.admin.ListChunks(ctx, "  ", 2)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.admin.ListChunks(ctx, "missing", 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdmin_DeleteDocumentRemovesVectors(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	gone := f.seed(t, "d1", 3, "one", "two")
	kept := f.seed(t, "d2", 3, "three")

	n, err := f.admin.DeleteDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hits, err := f.index.Search(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, kept[0].ID, hits[0].ChunkID)
	assert.NotEqual(t, gone[0].ID, hits[0].ChunkID)

	_, err = f.admin.DeleteDocument(ctx, "d1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.CodeNotFound, domain.ErrorCode(err))
}

func TestAdmin_Reindex(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	f.seed(t, "d1", 3, "one", "two")
	f.seed(t, "d2", 3, "three")

	// A chunk stored without an embedding is skipped
	require.NoError(t, f.store.SaveDocument(ctx, domain.Document{ID: "d3"}, []domain.Chunk{
		{ID: domain.ChunkID("d3", 0), DocumentID: "d3", Text: "bare"},
	}))

	// Lose the index entirely
	require.NoError(t, f.index.Drop(ctx))

	res, err := f.admin.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, &domain.ReindexResult{
		IndexName:     DefaultIndexName,
		Dimensions:    3,
		Documents:     3,
		ChunksIndexed: 3,
		ChunksSkipped: 1,
	}, res)
	assert.Zero(t, f.emb.callCount(), "reindex reuses stored embeddings")

	hits, err := f.index.Search(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, domain.ChunkID("d1", 1), hits[0].ChunkID)
}

func TestAdmin_ReindexTakesTheCommonWidth(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	f.seed(t, "d1", 3, "one", "two")

	// An older document embedded at another width
	require.NoError(t, f.store.SaveDocument(ctx, domain.Document{ID: "old"}, []domain.Chunk{
		{ID: domain.ChunkID("old", 0), DocumentID: "old", Text: "legacy", Embedding: []float32{1, 0}},
	}))

	res, err := f.admin.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Dimensions)
	assert.Equal(t, 2, res.ChunksIndexed)
	assert.Equal(t, 1, res.ChunksSkipped)
}

func TestAdmin_ReindexEmptyStoreUsesProviderWidth(t *testing.T) {
	f := newAdminFixture(t)

	res, err := f.admin.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Dimensions)
	assert.Zero(t, res.ChunksIndexed)

	spec, err := f.index.Describe(context.Background())
	require.NoError(t, err)
	require.NotNil(t, spec)
	assert.Equal(t, 3, spec.Dimensions)
}

func TestAdmin_Clear(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	f.seed(t, "d1", 3, "one", "two")
	f.seed(t, "d2", 3, "three")

	res, err := f.admin.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, &domain.ClearResult{DocumentsDeleted: 2, ChunksDeleted: 3}, res)

	status, err := f.admin.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StoreStatus{}, status)
}

func TestAdmin_NoStore(t *testing.T) {
	admin := NewAdminService(nil, nil, nil, "")
	ctx := context.Background()

	_, err := admin.Status(ctx)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, err = admin.ListDocuments(ctx)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, err = admin.DeleteDocument(ctx, "d1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, err = admin.Reindex(ctx)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, err = admin.Clear(ctx)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestAdmin_ReindexWithoutIndex(t *testing.T) {
	admin := NewAdminService(nil, memstore.NewStore(), nil, "")

	_, err := admin.Reindex(context.Background())
	assert.True(t, errors.Is(err, domain.ErrVectorIndexUnavailable))
	assert.Equal(t, domain.CodeStoreUnavailable, domain.ErrorCode(err))
}
