package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
)

var errClosed = errors.New("memory store is closed")

// VectorIndex is a brute-force cosine index over vectors held in memory.
type VectorIndex struct {
	mu      sync.RWMutex
	name    string
	spec    *driven.IndexSpec
	vectors map[string][]float32
	order   []string
	closed  bool
}

var _ driven.VectorIndex = (*VectorIndex)(nil)

// NewVectorIndex creates an index bound to name. It does not exist until
// EnsureIndex is called.
func NewVectorIndex(name string) *VectorIndex {
	return &VectorIndex{name: name, vectors: make(map[string][]float32)}
}

// EnsureIndex creates the index on first call.
func (v *VectorIndex) EnsureIndex(_ context.Context, spec driven.IndexSpec) (bool, error) {
	if spec.Dimensions <= 0 {
		return false, domain.NewValidationError("dimensions", "must be positive")
	}
	if spec.Name != "" && spec.Name != v.name {
		return false, fmt.Errorf("%w: index %q is bound to %q", domain.ErrInvalidInput, spec.Name, v.name)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false, &domain.StoreUnavailableError{Op: "creating vector index", Err: errClosed}
	}
	if v.spec != nil {
		if v.spec.Dimensions != spec.Dimensions {
			return false, &domain.DimensionMismatchError{Expected: v.spec.Dimensions, Got: spec.Dimensions}
		}
		return false, nil
	}
	spec.Name = v.name
	v.spec = &spec
	return true, nil
}

// Describe returns the spec, or nil before EnsureIndex.
func (v *VectorIndex) Describe(_ context.Context) (*driven.IndexSpec, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.spec == nil {
		return nil, nil
	}
	spec := *v.spec
	return &spec, nil
}

// Upsert stores chunk vectors. Every vector is checked before any is written.
func (v *VectorIndex) Upsert(_ context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return &domain.StoreUnavailableError{Op: "upserting vectors", Err: errClosed}
	}
	if v.spec == nil {
		return fmt.Errorf("%w: vector index %s does not exist", domain.ErrNotFound, v.name)
	}
	for _, c := range chunks {
		if len(c.Embedding) != v.spec.Dimensions {
			return &domain.DimensionMismatchError{Expected: v.spec.Dimensions, Got: len(c.Embedding)}
		}
	}
	for _, c := range chunks {
		if _, ok := v.vectors[c.ID]; !ok {
			v.order = append(v.order, c.ID)
		}
		v.vectors[c.ID] = append([]float32(nil), c.Embedding...)
	}
	return nil
}

// Search returns the k most similar vectors, ties in insertion order.
func (v *VectorIndex) Search(_ context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, &domain.StoreUnavailableError{Op: "searching vectors", Err: errClosed}
	}
	if v.spec == nil || k <= 0 {
		return []driven.VectorHit{}, nil
	}
	if len(query) != v.spec.Dimensions {
		return nil, &domain.DimensionMismatchError{Expected: v.spec.Dimensions, Got: len(query)}
	}

	hits := make([]driven.VectorHit, 0, len(v.order))
	for _, id := range v.order {
		hits = append(hits, driven.VectorHit{ChunkID: id, Similarity: cosine(query, v.vectors[id])})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Delete removes vectors by chunk ID.
func (v *VectorIndex) Delete(_ context.Context, chunkIDs []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return &domain.StoreUnavailableError{Op: "deleting vectors", Err: errClosed}
	}

	gone := make(map[string]struct{}, len(chunkIDs))
	for _, id := range chunkIDs {
		if _, ok := v.vectors[id]; ok {
			gone[id] = struct{}{}
			delete(v.vectors, id)
		}
	}
	if len(gone) == 0 {
		return nil
	}
	kept := v.order[:0]
	for _, id := range v.order {
		if _, ok := gone[id]; !ok {
			kept = append(kept, id)
		}
	}
	v.order = kept
	return nil
}

// Drop forgets the spec and every vector.
func (v *VectorIndex) Drop(_ context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return &domain.StoreUnavailableError{Op: "dropping vector index", Err: errClosed}
	}
	v.spec = nil
	v.vectors = make(map[string][]float32)
	v.order = nil
	return nil
}

// Close marks the index unavailable.
func (v *VectorIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
