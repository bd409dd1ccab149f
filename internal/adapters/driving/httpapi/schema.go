package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/docrag/internal/core/domain"
)

// UploadResponse is returned by POST /api/v1/schema/upload.
type UploadResponse struct {
	domain.CachedDocumentInfo
	ProcessingTimeMS float64 `json:"processing_time_ms"`
}

// InferRequest is the body of POST /api/v1/schema/infer.
// Exactly one of DocumentKey and Text is used; DocumentKey wins.
type InferRequest struct {
	DocumentKey      string   `json:"document_key,omitempty" validate:"omitempty,max=128"`
	Text             string   `json:"text,omitempty"`
	SamplePercentage *float64 `json:"sample_percentage,omitempty" validate:"omitempty,gt=0,lte=100"`
	MaxSampleLength  *int     `json:"max_sample_length,omitempty" validate:"omitempty,min=50,max=2000"`
	LLMProvider      string   `json:"llm_provider,omitempty" validate:"omitempty,max=64"`
	LLMModel         string   `json:"llm_model,omitempty" validate:"omitempty,max=200"`
}

// InferResponse is returned by POST /api/v1/schema/infer.
type InferResponse struct {
	domain.SchemaInference
	DocumentKey string `json:"document_key,omitempty"`
}

// DocumentListResponse is returned by GET /api/v1/schema/documents.
type DocumentListResponse struct {
	Documents      []domain.CachedDocumentInfo `json:"documents"`
	TotalDocuments int                         `json:"total_documents"`
	MemoryUsageMB  float64                     `json:"memory_usage_mb"`
	MaxDocuments   int                         `json:"max_documents"`
	TTLMinutes     int                         `json:"ttl_minutes"`
}

// DeleteResponse is returned by DELETE /api/v1/schema/documents/{key}.
type DeleteResponse struct {
	Message string `json:"message"`
	Key     string `json:"key"`
}

func (s *Server) handleSchemaUpload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	filename, content, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	llm := &domain.LLMConfig{
		Provider: strings.ToLower(strings.TrimSpace(r.FormValue("llm_provider"))),
		Model:    strings.TrimSpace(r.FormValue("llm_model")),
	}
	if llm.Override() == nil {
		llm = nil
	} else if err := s.ports.Providers.Validate(domain.RoleGeneration, llm.Override()); err != nil {
		writeError(w, err)
		return
	}

	text, err := s.ports.Extractors.Extract(r.Context(), filename, content)
	if err != nil {
		writeError(w, err)
		return
	}

	doc, err := s.ports.Cache.Store(text, filename, llm)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{
		CachedDocumentInfo: doc.Info(),
		ProcessingTimeMS:   elapsedMS(start),
	})
}

// handleSchemaInfer always answers 200 once the request is valid: provider
// failures come back as the fallback schema.
func (s *Server) handleSchemaInfer(w http.ResponseWriter, r *http.Request) {
	var req InferRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	override := overrideFrom(req.LLMProvider, req.LLMModel)
	text := req.Text
	if req.DocumentKey != "" {
		doc, ok := s.ports.Cache.Get(req.DocumentKey)
		if !ok {
			writeError(w, fmt.Errorf("%w: %s", domain.ErrCacheMiss, req.DocumentKey))
			return
		}
		text = doc.TextContent
		if override == nil {
			override = doc.LLMConfig.Override()
		}
	} else if strings.TrimSpace(text) == "" {
		writeError(w, domain.NewValidationError("document_key", "either document_key or text is required"))
		return
	}

	schemaReq := domain.SchemaRequest{
		Text:             text,
		SamplePercentage: req.SamplePercentage,
		MaxSampleLength:  req.MaxSampleLength,
		Provider:         override,
	}
	if err := schemaReq.Validate(); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, InferResponse{
		SchemaInference: s.ports.Schema.Infer(r.Context(), schemaReq),
		DocumentKey:     req.DocumentKey,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, _ *http.Request) {
	docs := s.ports.Cache.List()
	stats := s.ports.Cache.Stats()
	writeJSON(w, http.StatusOK, DocumentListResponse{
		Documents:      docs,
		TotalDocuments: len(docs),
		MemoryUsageMB:  stats.MemoryUsageMB,
		MaxDocuments:   stats.MaxDocuments,
		TTLMinutes:     stats.TTLMinutes,
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	doc, ok := s.ports.Cache.Get(key)
	if !ok {
		writeError(w, fmt.Errorf("%w: %s", domain.ErrCacheMiss, key))
		return
	}
	writeJSON(w, http.StatusOK, doc.Info())
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !s.ports.Cache.Remove(key) {
		writeError(w, fmt.Errorf("%w: %s", domain.ErrCacheMiss, key))
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Message: "Document removed from cache", Key: key})
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
