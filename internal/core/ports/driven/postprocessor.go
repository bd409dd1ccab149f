package driven

import (
	"context"

	"github.com/custodia-labs/docrag/internal/core/domain"
)

// PostProcessor turns document text into chunks or refines existing chunks.
// PostProcessors are chained in a pipeline (e.g., splitting, then cleaning).
type PostProcessor interface {
	// Name returns the processor name for logging and configuration.
	Name() string

	// Process receives the document, its full text and the chunks produced so far.
	// A splitter receives nil chunks and returns new ones.
	Process(ctx context.Context, doc *domain.Document, text string, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// PostProcessorPipeline chains multiple PostProcessors.
type PostProcessorPipeline interface {
	// Process runs the text through all processors in order and returns
	// chunks with sequential indexes and IDs derived from the document ID.
	Process(ctx context.Context, doc *domain.Document, text string) ([]domain.Chunk, error)
}
