package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/custodia-labs/docrag/internal/core/domain"
)

// IngestResponse is returned by POST /api/v1/ingest.
type IngestResponse struct {
	Status         string                  `json:"status"`
	Filename       string                  `json:"filename"`
	DocumentID     string                  `json:"document_id"`
	ChunksCreated  int                     `json:"chunks_created"`
	Degraded       bool                    `json:"degraded"`
	Message        string                  `json:"message"`
	ProviderUsed   domain.AIProvider       `json:"provider_used"`
	InferredSchema *domain.SchemaInference `json:"inferred_schema,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	filename, content, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	override := overrideFrom(r.FormValue("embedding_provider"), r.FormValue("embedding_model"))
	if err := s.ports.Providers.Validate(domain.RoleEmbedding, override); err != nil {
		writeError(w, err)
		return
	}

	infer := false
	if v := r.FormValue("infer_schema"); v != "" {
		infer, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, domain.NewValidationError("infer_schema", "must be a boolean"))
			return
		}
	}

	res, err := s.ports.Ingest.Ingest(r.Context(), domain.IngestRequest{
		Filename:          filename,
		Content:           content,
		EmbeddingProvider: override,
		InferSchema:       infer,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	msg := fmt.Sprintf("Document ingested into %d chunks", res.ChunksCreated)
	if res.Degraded {
		msg = "Document embedded but not persisted: " + res.DegradedReason
	}
	writeJSON(w, http.StatusCreated, IngestResponse{
		Status:         res.Status(),
		Filename:       res.Filename,
		DocumentID:     res.DocumentID,
		ChunksCreated:  res.ChunksCreated,
		Degraded:       res.Degraded,
		Message:        msg,
		ProviderUsed:   res.ProviderUsed,
		InferredSchema: res.Schema,
	})
}

// readUpload reads the multipart "file" field. The body is bounded by the
// upload limit and the extension is checked before the content is read.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+uploadSlack)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return "", nil, err
		}
		return "", nil, domain.NewValidationError("file", "expected a multipart/form-data upload")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil, domain.NewValidationError("file", "is required")
		}
		return "", nil, domain.NewValidationError("file", err.Error())
	}
	defer file.Close()

	filename := strings.TrimSpace(header.Filename)
	if filename == "" {
		return "", nil, domain.NewValidationError("file", "filename is required")
	}
	if !s.ports.Extractors.Supports(filename) {
		return "", nil, fmt.Errorf("%w: %s (supported: %s)", domain.ErrUnsupportedFileType,
			filename, strings.Join(s.ports.Extractors.Extensions(), ", "))
	}
	if header.Size > s.cfg.MaxUploadBytes {
		return "", nil, fmt.Errorf("%w: %d bytes exceeds the %d byte limit",
			domain.ErrDocumentTooLarge, header.Size, s.cfg.MaxUploadBytes)
	}

	content, err := readAll(file)
	if err != nil {
		return "", nil, err
	}
	if len(content) == 0 {
		return "", nil, domain.NewValidationError("file", "is empty")
	}
	return filename, content, nil
}

func readAll(f multipart.File) ([]byte, error) {
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	return b, nil
}

func overrideFrom(provider, model string) *domain.ProviderOverride {
	o := &domain.ProviderOverride{
		Provider: strings.ToLower(strings.TrimSpace(provider)),
		Model:    strings.TrimSpace(model),
	}
	if o.IsZero() {
		return nil
	}
	return o
}
