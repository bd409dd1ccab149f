package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/docrag/internal/core/domain"
)

// Chunk listing bounds for GET /api/v1/documents/{id}/chunks.
const (
	defaultChunkLimit = 10
	maxChunkLimit     = 1000
)

// ChunkResponse is one element of GET /api/v1/documents/{id}/chunks.
type ChunkResponse struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Dimensions int       `json:"embedding_dimensions"`
	CreatedAt  time.Time `json:"created_at"`
}

// DeleteDocumentResponse is returned by DELETE /api/v1/documents/{id}.
type DeleteDocumentResponse struct {
	Status        string `json:"status"`
	DocumentID    string `json:"doc_id"`
	ChunksDeleted int    `json:"chunks_deleted"`
}

// ReindexResponse is returned by POST /api/v1/db/reindex.
type ReindexResponse struct {
	Status string `json:"status"`
	domain.ReindexResult
}

// ClearResponse is returned by DELETE /api/v1/db/clear.
type ClearResponse struct {
	Status string `json:"status"`
	domain.ClearResult
}

func (s *Server) handleListStoredDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.ports.Admin.ListDocuments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if docs == nil {
		docs = []domain.DocumentInfo{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleDeleteStoredDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, err := s.ports.Admin.DeleteDocument(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteDocumentResponse{Status: "deleted", DocumentID: id, ChunksDeleted: n})
}

func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	limit, err := chunkLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, err)
		return
	}

	chunks, err := s.ports.Admin.ListChunks(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]ChunkResponse, len(chunks))
	for i, c := range chunks {
		out[i] = ChunkResponse{
			ID:         c.ID,
			DocumentID: c.DocumentID,
			ChunkIndex: c.Index,
			Text:       c.Text,
			Dimensions: len(c.Embedding),
			CreatedAt:  c.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func chunkLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultChunkLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxChunkLimit {
		return 0, domain.NewValidationError("limit", "must be an integer between 1 and "+strconv.Itoa(maxChunkLimit))
	}
	return n, nil
}

func (s *Server) handleDBStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.ports.Admin.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	res, err := s.ports.Admin.Reindex(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReindexResponse{Status: "ok", ReindexResult: *res})
}

func (s *Server) handleClearDB(w http.ResponseWriter, r *http.Request) {
	res, err := s.ports.Admin.Clear(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClearResponse{Status: "success", ClearResult: *res})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.ports.Providers.Models(r.Context(), r.PathValue("provider"))
	if err != nil {
		writeError(w, err)
		return
	}
	if catalog.Models == nil {
		catalog.Models = []string{}
	}
	writeJSON(w, http.StatusOK, catalog)
}
