package driven

import "context"

// TextExtractor turns an uploaded file into plain text.
type TextExtractor interface {
	// Extensions returns the lower-case extensions handled, with the dot.
	Extensions() []string

	// Extract returns the text content of data.
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

// ExtractorRegistry selects an extractor by filename.
type ExtractorRegistry interface {
	// Extract dispatches on the filename extension.
	// Returns domain.ErrUnsupportedFileType for unknown extensions.
	Extract(ctx context.Context, filename string, data []byte) (string, error)

	// Supports reports whether the filename's extension has an extractor.
	Supports(filename string) bool

	// Extensions returns every supported extension.
	Extensions() []string
}
