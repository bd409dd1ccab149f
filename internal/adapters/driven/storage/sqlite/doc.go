// Package sqlite provides the SQLite-backed chunk graph and built-in vector index.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. One Store hands out two port implementations
// over a single connection pool:
//
//   - ChunkStore: documents, ordered chunks and NEXT edges, plus term-overlap text search
//   - VectorIndex: index metadata and a brute-force cosine scan over stored embeddings
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.docrag/data/docrag.db
//
// # Availability
//
// Connection-level failures are reported as *domain.StoreUnavailableError so the
// ingestion pipeline can degrade instead of failing.
package sqlite
