package mcp

import (
	"context"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/docrag/internal/core/domain"
)

// maxTopK bounds top_k for both query and retrieve.
const maxTopK = 50

// QueryInput is the input schema for the query tool.
type QueryInput struct {
	Question string `json:"question" jsonschema:"the question to answer from ingested documents"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"number of sources to ground the answer on (default 5)"`
	Provider string `json:"provider,omitempty" jsonschema:"generation provider override (ollama, openai, anthropic, gemini)"`
	Model    string `json:"model,omitempty" jsonschema:"generation model override"`
}

// QueryOutput is the output schema for the query tool.
type QueryOutput struct {
	Answer       string         `json:"answer"`
	Sources      []SourceOutput `json:"sources"`
	ProviderUsed string         `json:"provider_used"`
	ModelUsed    string         `json:"model_used,omitempty"`
}

// RetrieveInput is the input schema for the retrieve tool.
type RetrieveInput struct {
	Question string `json:"question" jsonschema:"the text to find relevant chunks for"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"maximum number of chunks to return (default 5)"`
}

// RetrieveOutput is the output schema for the retrieve tool.
type RetrieveOutput struct {
	Sources []SourceOutput `json:"sources"`
	Count   int            `json:"count"`
}

// SourceOutput is one retrieved chunk.
type SourceOutput struct {
	ChunkID    string  `json:"chunk_id,omitempty"`
	DocumentID string  `json:"document_id,omitempty"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	Method     string  `json:"method,omitempty"`
}

// HealthInput is empty; the tool takes no arguments.
type HealthInput struct{}

// InferSchemaInput is the input schema for the infer_schema tool.
type InferSchemaInput struct {
	DocumentKey     string `json:"document_key,omitempty" jsonschema:"key of a document staged via the schema upload endpoint"`
	Text            string `json:"text,omitempty" jsonschema:"raw text to analyse when no document_key is given"`
	MaxSampleLength int    `json:"max_sample_length,omitempty" jsonschema:"sample length in characters (50 to 2000)"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query",
		Description: "Answer a question using only the ingested documents",
	}, s.handleQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve",
		Description: "Return the document chunks most relevant to a question, without generating an answer",
	}, s.handleRetrieve)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "health",
		Description: "Report embedding provider reachability and vector index state",
	}, s.handleHealth)

	if s.ports.Schema != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "infer_schema",
			Description: "Suggest graph node labels and relationship types for a document",
		}, s.handleInferSchema)
	}
}

func (s *Server) handleQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, QueryOutput{}, domain.NewValidationError("question", "is required")
	}

	var override *domain.ProviderOverride
	if input.Provider != "" || input.Model != "" {
		override = &domain.ProviderOverride{
			Provider: strings.ToLower(strings.TrimSpace(input.Provider)),
			Model:    strings.TrimSpace(input.Model),
		}
	}

	res, err := s.ports.Query.Query(ctx, question, domain.QueryOptions{
		TopK:     clampTopK(input.TopK),
		Provider: override,
	})
	if err != nil {
		return nil, QueryOutput{}, err
	}

	return nil, QueryOutput{
		Answer:       res.Answer,
		Sources:      toSourceOutputs(res.Sources),
		ProviderUsed: string(res.ProviderUsed),
		ModelUsed:    res.ModelUsed,
	}, nil
}

func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, RetrieveOutput{}, domain.NewValidationError("question", "is required")
	}

	sources, err := s.ports.Retrieval.Retrieve(ctx, question, clampTopK(input.TopK), nil)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	out := toSourceOutputs(sources)
	return nil, RetrieveOutput{Sources: out, Count: len(out)}, nil
}

func (s *Server) handleHealth(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ HealthInput,
) (*mcp.CallToolResult, domain.HealthReport, error) {
	return nil, s.ports.Retrieval.HealthCheck(ctx, nil), nil
}

func (s *Server) handleInferSchema(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input InferSchemaInput,
) (*mcp.CallToolResult, domain.SchemaInference, error) {
	req := domain.SchemaRequest{Text: input.Text}
	if input.MaxSampleLength != 0 {
		n := input.MaxSampleLength
		req.MaxSampleLength = &n
	}

	if input.DocumentKey != "" {
		if s.ports.Cache == nil {
			return nil, domain.SchemaInference{}, errors.New("document cache is not available")
		}
		doc, ok := s.ports.Cache.Get(input.DocumentKey)
		if !ok {
			return nil, domain.SchemaInference{}, domain.ErrCacheMiss
		}
		req.Text = doc.TextContent
		req.Provider = doc.LLMConfig.Override()
	}

	if strings.TrimSpace(req.Text) == "" {
		return nil, domain.SchemaInference{}, domain.NewValidationError("text", "either document_key or text is required")
	}
	if err := req.Validate(); err != nil {
		return nil, domain.SchemaInference{}, err
	}
	return nil, s.ports.Schema.Infer(ctx, req), nil
}

func clampTopK(k int) int {
	switch {
	case k <= 0:
		return domain.DefaultTopK
	case k > maxTopK:
		return maxTopK
	default:
		return k
	}
}

func toSourceOutputs(sources []domain.RetrievedSource) []SourceOutput {
	out := make([]SourceOutput, len(sources))
	for i, src := range sources {
		out[i] = SourceOutput{
			ChunkID:    src.ChunkID,
			DocumentID: src.DocumentID,
			Text:       src.Text,
			Score:      src.Score,
			Method:     string(src.Method),
		}
	}
	return out
}
