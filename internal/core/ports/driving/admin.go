package driving

import (
	"context"

	"github.com/custodia-labs/docrag/internal/core/domain"
)

// StoreAdmin inspects and maintains the persisted documents and the vector index.
type StoreAdmin interface {
	// ListDocuments returns stored documents, newest first.
	ListDocuments(ctx context.Context) ([]domain.DocumentInfo, error)

	// ListChunks returns up to limit chunks of a document in position order.
	ListChunks(ctx context.Context, documentID string, limit int) ([]domain.Chunk, error)

	// DeleteDocument removes a document with its chunks and vectors and
	// returns how many chunks went with it.
	DeleteDocument(ctx context.Context, documentID string) (int, error)

	// Status counts documents and chunks and describes the vector index.
	Status(ctx context.Context) (domain.StoreStatus, error)

	// Reindex rebuilds the vector index from the stored embeddings.
	Reindex(ctx context.Context) (*domain.ReindexResult, error)

	// Clear removes every document, chunk and the vector index.
	Clear(ctx context.Context) (*domain.ClearResult, error)
}
