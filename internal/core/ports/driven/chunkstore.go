package driven

import (
	"context"

	"github.com/custodia-labs/docrag/internal/core/domain"
)

// ChunkStore persists documents, their ordered chunks and the NEXT relation
// between consecutive chunks.
//
// Implementations return errors matching domain.ErrStoreUnavailable when the
// backend cannot be reached, so callers can degrade instead of failing.
type ChunkStore interface {
	// SaveDocument writes the document node, every chunk and the NEXT edges in
	// one transaction. Either all chunks become visible or none do.
	SaveDocument(ctx context.Context, doc domain.Document, chunks []domain.Chunk) error

	// GetChunks returns chunks by ID. Missing IDs are skipped.
	GetChunks(ctx context.Context, ids []string) ([]domain.Chunk, error)

	// NextChunk follows the NEXT relation from a chunk. Returns domain.ErrNotFound at the end.
	NextChunk(ctx context.Context, chunkID string) (*domain.Chunk, error)

	// SearchText returns chunks containing any of the query terms.
	SearchText(ctx context.Context, query string, limit int) ([]TextHit, error)

	// CountChunks returns the number of persisted chunks.
	CountChunks(ctx context.Context) (int, error)

	// CountDocuments returns the number of persisted documents.
	CountDocuments(ctx context.Context) (int, error)

	// ListDocuments returns every document with its chunk count, newest first.
	ListDocuments(ctx context.Context) ([]domain.DocumentInfo, error)

	// ListChunks returns a document's chunks in position order. limit <= 0
	// returns all of them. Returns domain.ErrNotFound for an unknown document.
	ListChunks(ctx context.Context, documentID string, limit int) ([]domain.Chunk, error)

	// DeleteDocument removes a document with its chunks and NEXT edges and
	// returns the IDs of the removed chunks. Returns domain.ErrNotFound for
	// an unknown document.
	DeleteDocument(ctx context.Context, documentID string) ([]string, error)

	// Clear removes every document and chunk.
	Clear(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// TextHit is a chunk matched by textual search.
type TextHit struct {
	Chunk domain.Chunk
	Score float64
}
