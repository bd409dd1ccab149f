package driving

import (
	"context"

	"github.com/custodia-labs/docrag/internal/core/domain"
)

// IngestService ingests documents into the chunk store and vector index.
type IngestService interface {
	// Ingest runs the ingestion pipeline for one document.
	// A degraded result is returned with a nil error.
	Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error)

	// Supports reports whether a filename can be ingested.
	Supports(filename string) bool
}

// DocumentCache stages uploaded documents for deferred schema inference.
type DocumentCache interface {
	// Store adds a document and returns the created entry.
	Store(content, filename string, llmConfig *domain.LLMConfig) (*domain.CachedDocument, error)

	// Get returns a live entry. Expired entries are purged and reported as misses.
	Get(key string) (*domain.CachedDocument, bool)

	// Remove deletes an entry. Removing an absent key is not an error.
	Remove(key string) bool

	// List returns metadata of live entries, newest first, without text.
	List() []domain.CachedDocumentInfo

	// Cleanup removes expired entries and returns how many were removed.
	Cleanup() int

	// Clear removes every entry and returns how many were removed.
	Clear() int

	// Stats describes the cache.
	Stats() domain.CacheStats
}

// SchemaService suggests a graph schema for a text sample.
type SchemaService interface {
	// Infer never fails; provider problems yield the fallback schema.
	Infer(ctx context.Context, req domain.SchemaRequest) domain.SchemaInference
}
