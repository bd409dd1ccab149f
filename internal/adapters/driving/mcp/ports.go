package mcp

import (
	"github.com/custodia-labs/docrag/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Query answers questions from ingested documents.
	Query driving.QueryService

	// Retrieval returns ranked chunks and reports health.
	Retrieval driving.RetrievalService

	// Schema suggests graph schemas. Optional.
	Schema driving.SchemaService

	// Cache holds documents staged for schema inference. Optional.
	Cache driving.DocumentCache
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Query == nil {
		return ErrMissingQueryService
	}
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	return nil
}
