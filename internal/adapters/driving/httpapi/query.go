package httpapi

import (
	"net/http"
	"strings"

	"github.com/custodia-labs/docrag/internal/core/domain"
)

// QueryRequest is the body of POST /api/v1/query.
type QueryRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
	Provider string `json:"provider,omitempty" validate:"omitempty,max=64"`
	Model    string `json:"model,omitempty" validate:"omitempty,max=200"`
	TopK     int    `json:"top_k,omitempty" validate:"omitempty,min=1,max=50"`
}

// SourceResponse is one retrieved source.
type SourceResponse struct {
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	DocumentID string  `json:"document_id,omitempty"`
	ChunkID    string  `json:"chunk_id,omitempty"`
}

// QueryResponse is returned by POST /api/v1/query.
type QueryResponse struct {
	Answer       string            `json:"answer"`
	Sources      []SourceResponse  `json:"sources"`
	Question     string            `json:"question"`
	ProviderUsed domain.AIProvider `json:"provider_used"`
	ModelUsed    string            `json:"model_used,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, domain.NewValidationError("question", "is required"))
		return
	}

	res, err := s.ports.Query.Query(r.Context(), req.Question, domain.QueryOptions{
		TopK:     req.TopK,
		Provider: overrideFrom(req.Provider, req.Model),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	sources := make([]SourceResponse, len(res.Sources))
	for i, src := range res.Sources {
		sources[i] = SourceResponse{Text: src.Text, Score: src.Score, DocumentID: src.DocumentID, ChunkID: src.ChunkID}
	}
	writeJSON(w, http.StatusOK, QueryResponse{
		Answer:       res.Answer,
		Sources:      sources,
		Question:     res.Question,
		ProviderUsed: res.ProviderUsed,
		ModelUsed:    res.ModelUsed,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.ports.Retrieval.HealthCheck(r.Context(), nil)
	status := http.StatusOK
	if report.Status == domain.HealthUnavailable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
