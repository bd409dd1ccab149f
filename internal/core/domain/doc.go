// Package domain defines the core business entities for docrag.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document and Chunk: an ingested file and its ordered text slices
//   - CachedDocument: an upload staged for schema inference
//   - RetrievedSource, Answer: per-query results
//   - SchemaInference: a suggested graph schema
//   - The error taxonomy shared by every layer
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
