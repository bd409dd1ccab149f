package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
)

func TestVectorIndex_EnsureIndex(t *testing.T) {
	v := NewVectorIndex("docs")
	ctx := context.Background()

	spec, err := v.Describe(ctx)
	require.NoError(t, err)
	assert.Nil(t, spec)

	created, err := v.EnsureIndex(ctx, driven.IndexSpec{Dimensions: 3, Similarity: "cosine"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = v.EnsureIndex(ctx, driven.IndexSpec{Name: "docs", Dimensions: 3})
	require.NoError(t, err)
	assert.False(t, created)

	_, err = v.EnsureIndex(ctx, driven.IndexSpec{Dimensions: 4})
	var mismatch *domain.DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 3, mismatch.Expected)

	_, err = v.EnsureIndex(ctx, driven.IndexSpec{Name: "other", Dimensions: 3})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	spec, err = v.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, "docs", spec.Name)
}

func TestVectorIndex_UpsertAndSearch(t *testing.T) {
	v := NewVectorIndex("docs")
	ctx := context.Background()
	_, err := v.EnsureIndex(ctx, driven.IndexSpec{Dimensions: 2})
	require.NoError(t, err)

	require.NoError(t, v.Upsert(ctx, []domain.Chunk{
		{ID: "a", Embedding: []float32{1, 0}},
		{ID: "b", Embedding: []float32{0, 1}},
		{ID: "c", Embedding: []float32{1, 1}},
	}))

	hits, err := v.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)
	assert.Equal(t, "c", hits[1].ChunkID)

	_, err = v.Search(ctx, []float32{1, 0, 0}, 2)
	var mismatch *domain.DimensionMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestVectorIndex_UpsertRejectsWrongWidthAtomically(t *testing.T) {
	v := NewVectorIndex("docs")
	ctx := context.Background()
	_, err := v.EnsureIndex(ctx, driven.IndexSpec{Dimensions: 2})
	require.NoError(t, err)

	err = v.Upsert(ctx, []domain.Chunk{
		{ID: "a", Embedding: []float32{1, 0}},
		{ID: "b", Embedding: []float32{1}},
	})
	var mismatch *domain.DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)

	hits, err := v.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestVectorIndex_MissingIndex(t *testing.T) {
	v := NewVectorIndex("docs")
	ctx := context.Background()

	err := v.Upsert(ctx, []domain.Chunk{{ID: "a", Embedding: []float32{1}}})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	hits, err := v.Search(ctx, []float32{1}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestVectorIndex_DeleteAndDrop(t *testing.T) {
	v := NewVectorIndex("idx")
	ctx := context.Background()
	_, err := v.EnsureIndex(ctx, driven.IndexSpec{Dimensions: 2})
	require.NoError(t, err)
	require.NoError(t, v.Upsert(ctx, []domain.Chunk{
		{ID: "a", Embedding: []float32{1, 0}},
		{ID: "b", Embedding: []float32{0.9, 0.1}},
		{ID: "c", Embedding: []float32{0, 1}},
	}))

	require.NoError(t, v.Delete(ctx, []string{"a", "missing"}))
	hits, err := v.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "b", hits[0].ChunkID)

	require.NoError(t, v.Drop(ctx))
	spec, err := v.Describe(ctx)
	require.NoError(t, err)
	assert.Nil(t, spec)
	require.NoError(t, v.Drop(ctx))

	// A dropped index can be recreated with another width
	created, err := v.EnsureIndex(ctx, driven.IndexSpec{Dimensions: 3})
	require.NoError(t, err)
	assert.True(t, created)
	hits, err = v.Search(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
