package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
)

// vectorIndex implements driven.VectorIndex with a brute-force cosine scan
// over the embeddings stored in the chunks table.
type vectorIndex struct {
	store *Store
	name  string
}

var _ driven.VectorIndex = (*vectorIndex)(nil)

// EnsureIndex records the index metadata if it is not there yet.
func (v *vectorIndex) EnsureIndex(ctx context.Context, spec driven.IndexSpec) (bool, error) {
	if spec.Dimensions <= 0 {
		return false, domain.NewValidationError("dimensions", "must be positive")
	}
	if spec.Name != "" && spec.Name != v.name {
		return false, fmt.Errorf("%w: index %q is bound to %q", domain.ErrInvalidInput, spec.Name, v.name)
	}

	res, err := v.store.db.ExecContext(ctx, `
		INSERT INTO vector_indexes (name, dimensions, similarity, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, v.name, spec.Dimensions, spec.Similarity, v.store.now().UTC())
	if err != nil {
		return false, classify("creating vector index", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return true, nil
	}

	existing, err := v.Describe(ctx)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, fmt.Errorf("vector index %s vanished after creation", v.name)
	}
	if existing.Dimensions != spec.Dimensions {
		return false, &domain.DimensionMismatchError{Expected: existing.Dimensions, Got: spec.Dimensions}
	}
	return false, nil
}

// Describe returns the index spec, or nil when it has not been created.
func (v *vectorIndex) Describe(ctx context.Context) (*driven.IndexSpec, error) {
	spec := driven.IndexSpec{Name: v.name}
	err := v.store.db.QueryRowContext(ctx, `
		SELECT dimensions, similarity FROM vector_indexes WHERE name = ?
	`, v.name).Scan(&spec.Dimensions, &spec.Similarity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("describing vector index", err)
	}
	return &spec, nil
}

// Upsert rewrites the embeddings of already persisted chunks.
func (v *vectorIndex) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	spec, err := v.Describe(ctx)
	if err != nil {
		return err
	}
	if spec == nil {
		return fmt.Errorf("%w: vector index %s does not exist", domain.ErrNotFound, v.name)
	}

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, c := range chunks {
		if len(c.Embedding) != spec.Dimensions {
			return &domain.DimensionMismatchError{Expected: spec.Dimensions, Got: len(c.Embedding)}
		}
		if _, err := tx.ExecContext(ctx, "UPDATE chunks SET embedding = ? WHERE id = ?",
			float32SliceToBytes(c.Embedding), c.ID); err != nil {
			return classify("updating embedding", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify("committing transaction", err)
	}
	return nil
}

// Search scans every stored embedding and returns the k most similar.
func (v *vectorIndex) Search(ctx context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	spec, err := v.Describe(ctx)
	if err != nil {
		return nil, err
	}
	if spec == nil || k <= 0 {
		return []driven.VectorHit{}, nil
	}
	if len(query) != spec.Dimensions {
		return nil, &domain.DimensionMismatchError{Expected: spec.Dimensions, Got: len(query)}
	}

	rows, err := v.store.db.QueryContext(ctx, `
		SELECT id, embedding FROM chunks
		WHERE embedding IS NOT NULL
		ORDER BY document_id, position
	`)
	if err != nil {
		return nil, classify("scanning embeddings", err)
	}
	defer rows.Close()

	var hits []driven.VectorHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		vec := bytesToFloat32Slice(blob)
		if len(vec) != spec.Dimensions {
			continue
		}
		hits = append(hits, driven.VectorHit{ChunkID: id, Similarity: cosineSimilarity(query, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	if hits == nil {
		hits = []driven.VectorHit{}
	}
	return hits, nil
}

// Delete clears the stored embeddings of the given chunks.
func (v *vectorIndex) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunkIDs)), ",")
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}
	if _, err := v.store.db.ExecContext(ctx,
		"UPDATE chunks SET embedding = NULL WHERE id IN ("+placeholders+")", args...); err != nil {
		return classify("deleting embeddings", err)
	}
	return nil
}

// Drop removes the index metadata. Embeddings stay on the chunks so a
// reindex can restore the index without calling the provider.
func (v *vectorIndex) Drop(ctx context.Context) error {
	if _, err := v.store.db.ExecContext(ctx, "DELETE FROM vector_indexes WHERE name = ?", v.name); err != nil {
		return classify("dropping vector index", err)
	}
	return nil
}

// Close is a no-op; the connection belongs to the Store.
func (v *vectorIndex) Close() error {
	return nil
}

// cosineSimilarity returns the cosine of the angle between a and b,
// or 0 when either is a zero vector.
func cosineSimilarity(a, b []float32) float64 {
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
