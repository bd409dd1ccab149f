// Package chromem provides an embedded VectorIndex backed by chromem-go.
//
// With a path the collection is persisted as gob files under that
// directory; without one it lives in memory for the process lifetime.
package chromem

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// The index spec is kept as a single document in a sidecar collection,
// since chromem does not expose collection metadata once created.
const (
	metaSuffix = "__spec"
	metaDocID  = "spec"
)

// Config holds configuration for the chromem index.
type Config struct {
	// Path is the persistence directory. Empty keeps the index in memory.
	Path string

	// Compress gzips persisted files.
	Compress bool

	// Collection is the collection name the index is bound to.
	Collection string
}

// Index stores chunk vectors as chromem documents keyed by chunk ID.
type Index struct {
	db   *chromem.DB
	name string

	// mu serialises EnsureIndex so two ingests cannot both create the spec.
	mu sync.Mutex
}

// NewIndex opens or creates the chromem database.
func NewIndex(cfg Config) (*Index, error) {
	if cfg.Collection == "" {
		return nil, domain.NewValidationError("collection", "is required")
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: opening chromem database at %s: %w",
				domain.ErrVectorIndexUnavailable, cfg.Path, err)
		}
	}
	return &Index{db: db, name: cfg.Collection}, nil
}

// EnsureIndex creates the collection and records its spec.
func (i *Index) EnsureIndex(ctx context.Context, spec driven.IndexSpec) (bool, error) {
	if spec.Dimensions <= 0 {
		return false, domain.NewValidationError("dimensions", "must be positive")
	}
	if spec.Name != "" && spec.Name != i.name {
		return false, fmt.Errorf("%w: index %q is bound to %q", domain.ErrInvalidInput, spec.Name, i.name)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	existing, err := i.Describe(ctx)
	if err != nil {
		return false, err
	}
	if existing != nil {
		if existing.Dimensions != spec.Dimensions {
			return false, &domain.DimensionMismatchError{Expected: existing.Dimensions, Got: spec.Dimensions}
		}
		return false, nil
	}

	similarity := spec.Similarity
	if similarity == "" {
		similarity = "cosine"
	}
	if _, err := i.db.GetOrCreateCollection(i.name, nil, nil); err != nil {
		return false, fmt.Errorf("creating collection: %w", err)
	}
	meta, err := i.db.GetOrCreateCollection(i.name+metaSuffix, nil, nil)
	if err != nil {
		return false, fmt.Errorf("creating spec collection: %w", err)
	}
	if err := meta.AddDocument(ctx, chromem.Document{
		ID:        metaDocID,
		Content:   encodeSpec(spec.Dimensions, similarity),
		Embedding: []float32{1},
	}); err != nil {
		return false, fmt.Errorf("recording index spec: %w", err)
	}
	return true, nil
}

// Describe reads the recorded spec, or nil when EnsureIndex never ran.
func (i *Index) Describe(ctx context.Context) (*driven.IndexSpec, error) {
	meta := i.db.GetCollection(i.name+metaSuffix, nil)
	if meta == nil || meta.Count() == 0 {
		return nil, nil
	}

	res, err := meta.QueryEmbedding(ctx, []float32{1}, 1, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("reading index spec: %w", err)
	}
	if len(res) == 0 {
		return nil, nil
	}

	dims, similarity, err := decodeSpec(res[0].Content)
	if err != nil {
		return nil, err
	}
	return &driven.IndexSpec{Name: i.name, Dimensions: dims, Similarity: similarity}, nil
}

// Upsert adds or replaces one document per chunk.
func (i *Index) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	spec, err := i.Describe(ctx)
	if err != nil {
		return err
	}
	if spec == nil {
		return fmt.Errorf("%w: vector index %s does not exist", domain.ErrNotFound, i.name)
	}

	docs := make([]chromem.Document, len(chunks))
	for n, c := range chunks {
		if len(c.Embedding) != spec.Dimensions {
			return &domain.DimensionMismatchError{Expected: spec.Dimensions, Got: len(c.Embedding)}
		}
		docs[n] = chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Embedding: c.Embedding,
			Metadata: map[string]string{
				"document_id": c.DocumentID,
				"position":    strconv.Itoa(c.Index),
			},
		}
	}

	col := i.db.GetCollection(i.name, nil)
	if col == nil {
		return fmt.Errorf("%w: collection %s missing", domain.ErrNotFound, i.name)
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}
	return nil
}

// Search returns the k nearest chunks. chromem rejects k above the
// collection size, so k is clamped first.
func (i *Index) Search(ctx context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	spec, err := i.Describe(ctx)
	if err != nil {
		return nil, err
	}
	col := i.db.GetCollection(i.name, nil)
	if spec == nil || col == nil || k <= 0 {
		return []driven.VectorHit{}, nil
	}
	if len(query) != spec.Dimensions {
		return nil, &domain.DimensionMismatchError{Expected: spec.Dimensions, Got: len(query)}
	}

	if n := col.Count(); k > n {
		k = n
	}
	if k == 0 {
		return []driven.VectorHit{}, nil
	}

	res, err := col.QueryEmbedding(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}
	hits := make([]driven.VectorHit, len(res))
	for n, r := range res {
		hits[n] = driven.VectorHit{ChunkID: r.ID, Similarity: float64(r.Similarity)}
	}
	return hits, nil
}

// Delete removes chunk documents by ID.
func (i *Index) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	col := i.db.GetCollection(i.name, nil)
	if col == nil {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, chunkIDs...); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	return nil
}

// Drop deletes the collection and its recorded spec.
func (i *Index) Drop(_ context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.db.DeleteCollection(i.name); err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	if err := i.db.DeleteCollection(i.name + metaSuffix); err != nil {
		return fmt.Errorf("deleting spec collection: %w", err)
	}
	return nil
}

// Close is a no-op; persisted writes are flushed as they happen.
func (i *Index) Close() error {
	return nil
}

func encodeSpec(dims int, similarity string) string {
	return fmt.Sprintf("dimensions=%d;similarity=%s", dims, similarity)
}

func decodeSpec(s string) (int, string, error) {
	var dims int
	similarity := "cosine"
	for _, part := range strings.Split(s, ";") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch key {
		case "dimensions":
			n, err := strconv.Atoi(value)
			if err != nil {
				return 0, "", fmt.Errorf("corrupt index spec %q: %w", s, err)
			}
			dims = n
		case "similarity":
			similarity = value
		}
	}
	if dims <= 0 {
		return 0, "", fmt.Errorf("corrupt index spec %q", s)
	}
	return dims, similarity, nil
}
