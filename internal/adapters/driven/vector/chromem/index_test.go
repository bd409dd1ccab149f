package chromem

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
)

const testCollection = "document_embeddings"

func newMemoryIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex(Config{Collection: testCollection})
	require.NoError(t, err)
	return idx
}

func axisChunks(docID string, dims, n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		vec := make([]float32, dims)
		vec[i%dims] = 1
		chunks[i] = domain.Chunk{
			ID:         domain.ChunkID(docID, i),
			DocumentID: docID,
			Text:       "chunk text",
			Index:      i,
			Embedding:  vec,
		}
	}
	return chunks
}

func TestNewIndex_RequiresCollection(t *testing.T) {
	_, err := NewIndex(Config{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIndex_EnsureIndexIsIdempotent(t *testing.T) {
	idx := newMemoryIndex(t)
	ctx := context.Background()

	spec, err := idx.Describe(ctx)
	require.NoError(t, err)
	assert.Nil(t, spec)

	created, err := idx.EnsureIndex(ctx, driven.IndexSpec{Name: testCollection, Dimensions: 3, Similarity: "cosine"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = idx.EnsureIndex(ctx, driven.IndexSpec{Dimensions: 3})
	require.NoError(t, err)
	assert.False(t, created)

	spec, err = idx.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, &driven.IndexSpec{Name: testCollection, Dimensions: 3, Similarity: "cosine"}, spec)
}

func TestIndex_DimensionMismatch(t *testing.T) {
	idx := newMemoryIndex(t)
	ctx := context.Background()

	_, err := idx.EnsureIndex(ctx, driven.IndexSpec{Dimensions: 3})
	require.NoError(t, err)

	_, err = idx.EnsureIndex(ctx, driven.IndexSpec{Dimensions: 768})
	var mismatch *domain.DimensionMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 3, mismatch.Expected)
	assert.Equal(t, 768, mismatch.Got)

	err = idx.Upsert(ctx, axisChunks("doc1", 2, 1))
	assert.True(t, errors.As(err, &mismatch))

	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	assert.True(t, errors.As(err, &mismatch))
}

func TestIndex_EnsureIndexValidation(t *testing.T) {
	idx := newMemoryIndex(t)

	_, err := idx.EnsureIndex(context.Background(), driven.IndexSpec{Dimensions: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = idx.EnsureIndex(context.Background(), driven.IndexSpec{Name: "other", Dimensions: 3})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIndex_UpsertRequiresIndex(t *testing.T) {
	idx := newMemoryIndex(t)

	err := idx.Upsert(context.Background(), axisChunks("doc1", 3, 2))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, idx.Upsert(context.Background(), nil))
}

func TestIndex_SearchRanksBySimilarity(t *testing.T) {
	idx := newMemoryIndex(t)
	ctx := context.Background()

	_, err := idx.EnsureIndex(ctx, driven.IndexSpec{Dimensions: 3})
	require.NoError(t, err)
	chunks := axisChunks("doc1", 3, 3)
	require.NoError(t, idx.Upsert(ctx, chunks))

	hits, err := idx.Search(ctx, []float32{0.1, 0.9, 0.3}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, chunks[1].ID, hits[0].ChunkID)
	assert.Equal(t, chunks[2].ID, hits[1].ChunkID)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)
}

func TestIndex_SearchClampsK(t *testing.T) {
	idx := newMemoryIndex(t)
	ctx := context.Background()

	hits, err := idx.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits, "no index yet")

	_, err = idx.EnsureIndex(ctx, driven.IndexSpec{Dimensions: 2})
	require.NoError(t, err)

	hits, err = idx.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits, "empty collection")

	require.NoError(t, idx.Upsert(ctx, axisChunks("doc1", 2, 2)))
	hits, err = idx.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestIndex_UpsertReplacesByChunkID(t *testing.T) {
	idx := newMemoryIndex(t)
	ctx := context.Background()

	_, err := idx.EnsureIndex(ctx, driven.IndexSpec{Dimensions: 2})
	require.NoError(t, err)
	chunks := axisChunks("doc1", 2, 2)
	require.NoError(t, idx.Upsert(ctx, chunks))

	chunks[0].Embedding, chunks[1].Embedding = chunks[1].Embedding, chunks[0].Embedding
	require.NoError(t, idx.Upsert(ctx, chunks))

	hits, err := idx.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2, "re-upsert must not duplicate")
	assert.Equal(t, chunks[1].ID, hits[0].ChunkID)
}

func TestIndex_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := NewIndex(Config{Path: dir, Collection: testCollection})
	require.NoError(t, err)
	_, err = idx.EnsureIndex(ctx, driven.IndexSpec{Dimensions: 2})
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, axisChunks("doc1", 2, 2)))
	require.NoError(t, idx.Close())

	reopened, err := NewIndex(Config{Path: dir, Collection: testCollection})
	require.NoError(t, err)

	spec, err := reopened.Describe(ctx)
	require.NoError(t, err)
	require.NotNil(t, spec)
	assert.Equal(t, 2, spec.Dimensions)

	hits, err := reopened.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc1-chunk-1", hits[0].ChunkID)
}

func TestIndex_ConcurrentEnsure(t *testing.T) {
	idx := newMemoryIndex(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	created := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := idx.EnsureIndex(ctx, driven.IndexSpec{Dimensions: 4})
			assert.NoError(t, err)
			created <- ok
		}()
	}
	wg.Wait()
	close(created)

	count := 0
	for ok := range created {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSpecEncoding(t *testing.T) {
	dims, similarity, err := decodeSpec(encodeSpec(384, "cosine"))
	require.NoError(t, err)
	assert.Equal(t, 384, dims)
	assert.Equal(t, "cosine", similarity)

	_, _, err = decodeSpec("dimensions=abc")
	assert.Error(t, err)

	_, _, err = decodeSpec("garbage")
	assert.Error(t, err)
}

func TestIndex_Delete(t *testing.T) {
	idx := newMemoryIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Delete(ctx, []string{"nothing-yet"}), "deleting before the index exists is fine")

	_, err := idx.EnsureIndex(ctx, driven.IndexSpec{Dimensions: 3})
	require.NoError(t, err)
	chunks := axisChunks("doc1", 3, 3)
	require.NoError(t, idx.Upsert(ctx, chunks))

	require.NoError(t, idx.Delete(ctx, []string{chunks[0].ID, "unknown"}))
	require.NoError(t, idx.Delete(ctx, nil))

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.NotEqual(t, chunks[0].ID, h.ChunkID)
	}
}

func TestIndex_Drop(t *testing.T) {
	idx := newMemoryIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Drop(ctx), "dropping a missing index is fine")

	_, err := idx.EnsureIndex(ctx, driven.IndexSpec{Dimensions: 2})
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, axisChunks("doc1", 2, 2)))

	require.NoError(t, idx.Drop(ctx))
	spec, err := idx.Describe(ctx)
	require.NoError(t, err)
	assert.Nil(t, spec)

	hits, err := idx.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	created, err := idx.EnsureIndex(ctx, driven.IndexSpec{Dimensions: 4})
	require.NoError(t, err)
	assert.True(t, created, "a new width is accepted after a drop")
}
