package driven

import (
	"context"

	"github.com/custodia-labs/docrag/internal/core/domain"
)

// IndexSpec describes a named vector index.
type IndexSpec struct {
	// Name is the index (collection) name.
	Name string

	// Dimensions is the vector width the index accepts.
	Dimensions int

	// Similarity is the distance function, "cosine".
	Similarity string
}

// VectorIndex stores and searches chunk embeddings.
type VectorIndex interface {
	// EnsureIndex creates the index if it does not exist.
	// It never fails because the index is already present; it returns
	// *domain.DimensionMismatchError when an existing index has another width.
	// The boolean reports whether the call created the index.
	EnsureIndex(ctx context.Context, spec IndexSpec) (bool, error)

	// Describe returns the index spec, or nil when the index does not exist.
	Describe(ctx context.Context) (*IndexSpec, error)

	// Upsert adds or replaces chunk vectors.
	Upsert(ctx context.Context, chunks []domain.Chunk) error

	// Search returns the k nearest chunks ordered by similarity descending.
	Search(ctx context.Context, query []float32, k int) ([]VectorHit, error)

	// Delete removes chunk vectors. Unknown IDs are ignored.
	Delete(ctx context.Context, chunkIDs []string) error

	// Drop removes the index. Dropping a missing index is not an error.
	Drop(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// VectorHit represents a result from vector similarity search.
type VectorHit struct {
	// ChunkID is the ID of the matched chunk.
	ChunkID string

	// Similarity is the similarity score, higher is more similar.
	Similarity float64
}
