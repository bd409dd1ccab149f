package domain

// IngestState is a step of the ingestion state machine.
type IngestState string

// Ingestion states. Complete, Degraded and Failed are terminal.
const (
	IngestReceived     IngestState = "received"
	IngestChunked      IngestState = "chunked"
	IngestEmbedded     IngestState = "embedded"
	IngestPersisted    IngestState = "persisted"
	IngestIndexEnsured IngestState = "index_ensured"
	IngestComplete     IngestState = "complete"
	IngestDegraded     IngestState = "degraded"
	IngestFailed       IngestState = "failed"
)

// IsTerminal returns true for end states.
func (s IngestState) IsTerminal() bool {
	return s == IngestComplete || s == IngestDegraded || s == IngestFailed
}

// IngestRequest is the input to the ingestion pipeline.
type IngestRequest struct {
	// Filename selects the extractor and is recorded on the document node.
	Filename string

	// Content is the raw upload. Ignored when Text is set.
	Content []byte

	// Text is already extracted text.
	Text string

	// EmbeddingProvider optionally overrides the configured embedding provider.
	EmbeddingProvider *ProviderOverride

	// InferSchema asks the pipeline for a schema suggestion.
	InferSchema bool
}

// IngestResult is the outcome of one ingestion.
type IngestResult struct {
	DocumentID     string           `json:"document_id"`
	Filename       string           `json:"filename"`
	ChunksCreated  int              `json:"chunks_created"`
	State          IngestState      `json:"state"`
	Degraded       bool             `json:"degraded"`
	DegradedReason string           `json:"degraded_reason,omitempty"`
	ProviderUsed   AIProvider       `json:"provider_used"`
	Schema         *SchemaInference `json:"inferred_schema,omitempty"`
	ElapsedMS      float64          `json:"processing_time_ms"`
}

// Status is the coarse outcome reported to API callers.
func (r *IngestResult) Status() string {
	if r.Degraded {
		return "degraded"
	}
	return "success"
}
