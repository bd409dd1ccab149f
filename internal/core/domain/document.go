package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Document is the aggregation node for an ingested file.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Filename is the name the document was uploaded under.
	Filename string

	// FileType is the normalised extension (txt, pdf, ...).
	FileType FileType

	// IngestedAt is when the document was persisted.
	IngestedAt time.Time
}

// DocumentInfo summarises a stored document.
type DocumentInfo struct {
	ID         string    `json:"doc_id"`
	Filename   string    `json:"filename"`
	FileType   FileType  `json:"filetype"`
	IngestedAt time.Time `json:"ingested_at"`
	ChunkCount int       `json:"chunk_count"`
}

// StoreStatus reports what the chunk store and vector index hold.
type StoreStatus struct {
	Documents         int    `json:"documents"`
	Chunks            int    `json:"chunks"`
	VectorIndexExists bool   `json:"vector_index_exists"`
	IndexName         string `json:"index_name,omitempty"`
	IndexDimensions   int    `json:"index_dimensions,omitempty"`
}

// ReindexResult reports a vector index rebuild from stored embeddings.
type ReindexResult struct {
	IndexName     string `json:"index_name"`
	Dimensions    int    `json:"dimensions"`
	Documents     int    `json:"documents"`
	ChunksIndexed int    `json:"chunks_indexed"`
	// ChunksSkipped have no stored embedding or one of another width.
	ChunksSkipped int `json:"chunks_skipped"`
}

// ClearResult reports what a full wipe removed.
type ClearResult struct {
	DocumentsDeleted int `json:"documents_deleted"`
	ChunksDeleted    int `json:"chunks_deleted"`
}

// Chunk is a bounded contiguous slice of a document's text,
// the unit of embedding and retrieval. Chunks are immutable once created.
type Chunk struct {
	// ID is "{document_id}-chunk-{index}".
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Text is the chunk content.
	Text string

	// Index is the 0-based ordinal position within the document.
	Index int

	// Embedding is the vector representation for semantic search.
	Embedding []float32

	// CreatedAt is when the chunk was produced.
	CreatedAt time.Time
}

// ChunkID builds the identifier of the i-th chunk of a document.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s-chunk-%d", documentID, index)
}

// FileType is the coarse type of an uploaded document.
type FileType string

// Known file types.
const (
	FileTypeText     FileType = "txt"
	FileTypeMarkdown FileType = "md"
	FileTypeHTML     FileType = "html"
	FileTypePDF      FileType = "pdf"
	FileTypeDOCX     FileType = "docx"
	FileTypeXLSX     FileType = "xlsx"
	FileTypeUnknown  FileType = "unknown"
)

// FileTypeOf derives the file type from a filename's extension.
func FileTypeOf(filename string) FileType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return FileTypeText
	case ".md", ".markdown":
		return FileTypeMarkdown
	case ".html", ".htm":
		return FileTypeHTML
	case ".pdf":
		return FileTypePDF
	case ".docx":
		return FileTypeDOCX
	case ".xlsx":
		return FileTypeXLSX
	default:
		return FileTypeUnknown
	}
}
