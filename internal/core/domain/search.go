package domain

// DefaultTopK is the number of sources retrieved when the caller does not say.
const DefaultTopK = 5

// RetrievalMethod records which path produced a source.
type RetrievalMethod string

// Retrieval methods.
const (
	MethodVector RetrievalMethod = "vector"
	MethodText   RetrievalMethod = "text"
)

// RetrievedSource is a chunk returned for a query. Never persisted.
type RetrievedSource struct {
	// ChunkID identifies the matched chunk.
	ChunkID string `json:"chunk_id,omitempty"`

	// DocumentID identifies the chunk's document.
	DocumentID string `json:"document_id,omitempty"`

	// Text is the chunk content.
	Text string `json:"text"`

	// Score is the relevance score, higher is better.
	Score float64 `json:"score"`

	// Method is the retrieval path that found the chunk.
	Method RetrievalMethod `json:"method,omitempty"`
}

// HealthStatus is the coarse state of a component.
type HealthStatus string

// Health states.
const (
	HealthOK          HealthStatus = "ok"
	HealthDegraded    HealthStatus = "degraded"
	HealthUnavailable HealthStatus = "unavailable"
)

// ProviderHealth reports embedding provider reachability.
type ProviderHealth struct {
	Name       AIProvider   `json:"name"`
	Model      string       `json:"model"`
	Status     HealthStatus `json:"status"`
	Dimensions int          `json:"dimensions,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// StoreHealth reports persistence and vector index state.
type StoreHealth struct {
	Status          HealthStatus `json:"status"`
	IndexName       string       `json:"index_name,omitempty"`
	IndexExists     bool         `json:"index_exists"`
	IndexDimensions int          `json:"index_dimensions,omitempty"`
	ChunkCount      int          `json:"chunk_count"`
	Error           string       `json:"error,omitempty"`
}

// HealthReport is returned by the retrieval health check.
type HealthReport struct {
	Status   HealthStatus   `json:"status"`
	Provider ProviderHealth `json:"provider"`
	Store    StoreHealth    `json:"store"`
}

// Answer is the output of the generation service.
type Answer struct {
	Answer       string            `json:"answer"`
	ProviderUsed AIProvider        `json:"provider_used"`
	ModelUsed    string            `json:"model_used"`
	SourcesUsed  []RetrievedSource `json:"sources_used"`
}

// QueryResult is the combined retrieval and generation result.
type QueryResult struct {
	Question     string            `json:"question"`
	Answer       string            `json:"answer"`
	Sources      []RetrievedSource `json:"sources"`
	ProviderUsed AIProvider        `json:"provider_used"`
	ModelUsed    string            `json:"model_used"`
}

// QueryOptions tunes a query.
type QueryOptions struct {
	// TopK is the number of sources to retrieve.
	TopK int

	// Provider overrides the generation provider.
	Provider *ProviderOverride
}
