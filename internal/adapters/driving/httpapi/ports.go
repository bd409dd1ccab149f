package httpapi

import (
	"errors"

	"github.com/custodia-labs/docrag/internal/core/ports/driven"
	"github.com/custodia-labs/docrag/internal/core/ports/driving"
)

// Errors returned by Ports.Validate.
var (
	ErrMissingIngestService    = errors.New("ingest service is required")
	ErrMissingQueryService     = errors.New("query service is required")
	ErrMissingRetrievalService = errors.New("retrieval service is required")
	ErrMissingSchemaService    = errors.New("schema service is required")
	ErrMissingDocumentCache    = errors.New("document cache is required")
	ErrMissingProviders        = errors.New("provider registry is required")
	ErrMissingExtractors       = errors.New("extractor registry is required")
	ErrMissingStoreAdmin       = errors.New("store admin is required")
)

// Ports aggregates everything the HTTP surface calls into.
type Ports struct {
	Ingest     driving.IngestService
	Query      driving.QueryService
	Retrieval  driving.RetrievalService
	Schema     driving.SchemaService
	Cache      driving.DocumentCache
	Providers  driving.ProviderRegistry
	Extractors driven.ExtractorRegistry
	Admin      driving.StoreAdmin
}

// Validate ensures all ports are set.
func (p *Ports) Validate() error {
	switch {
	case p.Ingest == nil:
		return ErrMissingIngestService
	case p.Query == nil:
		return ErrMissingQueryService
	case p.Retrieval == nil:
		return ErrMissingRetrievalService
	case p.Schema == nil:
		return ErrMissingSchemaService
	case p.Cache == nil:
		return ErrMissingDocumentCache
	case p.Providers == nil:
		return ErrMissingProviders
	case p.Extractors == nil:
		return ErrMissingExtractors
	case p.Admin == nil:
		return ErrMissingStoreAdmin
	}
	return nil
}
