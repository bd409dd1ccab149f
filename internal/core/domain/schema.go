package domain

import "fmt"

// SchemaSource tells whether a schema came from the model or the fallback.
type SchemaSource string

// Schema sources.
const (
	SchemaSourceLLM      SchemaSource = "llm"
	SchemaSourceFallback SchemaSource = "fallback"
)

// Sampling bounds for schema inference.
const (
	MinSampleLength     = 50
	MaxSampleLength     = 2000
	DefaultSampleLength = 500
)

// SchemaRequest asks for a schema suggestion over a text sample.
//
// SamplePercentage and MaxSampleLength are independent fields.
// When both are set MaxSampleLength wins.
type SchemaRequest struct {
	Text             string
	SamplePercentage *float64
	MaxSampleLength  *int
	Provider         *ProviderOverride
}

// Validate checks the sampling bounds.
func (r SchemaRequest) Validate() error {
	if r.SamplePercentage != nil && (*r.SamplePercentage <= 0 || *r.SamplePercentage > 100) {
		return NewValidationError("sample_percentage", "must be greater than 0 and at most 100")
	}
	if r.MaxSampleLength != nil && (*r.MaxSampleLength < MinSampleLength || *r.MaxSampleLength > MaxSampleLength) {
		return NewValidationError("max_sample_length",
			fmt.Sprintf("must be between %d and %d", MinSampleLength, MaxSampleLength))
	}
	return nil
}

// SampleInfo describes the sample that was analysed.
type SampleInfo struct {
	TotalChars       int      `json:"total_chars"`
	SampleChars      int      `json:"sample_chars"`
	SamplePercentage *float64 `json:"sample_percentage,omitempty"`
	MaxSampleLength  *int     `json:"max_sample_length,omitempty"`
}

// SchemaInference is a suggested set of node labels and relationship types.
type SchemaInference struct {
	NodeLabels        []string     `json:"node_labels"`
	RelationshipTypes []string     `json:"relationship_types"`
	Source            SchemaSource `json:"source"`
	ModelUsed         string       `json:"model_used"`
	Reason            string       `json:"reason,omitempty"`
	ProcessingTimeMS  float64      `json:"processing_time_ms"`
	Sample            SampleInfo   `json:"document_info"`
}

// FallbackSchema returns the fixed schema used when inference fails.
func FallbackSchema(reason string) SchemaInference {
	return SchemaInference{
		NodeLabels:        []string{"Entity", "Concept"},
		RelationshipTypes: []string{"RELATED_TO", "MENTIONS"},
		Source:            SchemaSourceFallback,
		ModelUsed:         "fallback",
		Reason:            reason,
	}
}
