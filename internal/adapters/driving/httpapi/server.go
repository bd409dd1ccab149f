// Package httpapi exposes ingestion, question answering and schema
// inference over a JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/custodia-labs/docrag/internal/logger"
)

// Default server values.
const (
	DefaultAddr     = ":8000"
	shutdownTimeout = 10 * time.Second
	// uploadSlack covers multipart framing around the file part.
	uploadSlack = 1 << 20
)

// Config configures the HTTP server.
type Config struct {
	Addr string

	// MaxUploadBytes bounds one uploaded file.
	MaxUploadBytes int64

	// Version is reported by GET /.
	Version string
}

// Server serves the docrag API.
type Server struct {
	ports    *Ports
	cfg      Config
	validate *validator.Validate
	log      *zap.Logger
	handler  http.Handler
}

// NewServer creates a server over the given ports.
func NewServer(ports *Ports, cfg Config) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}

	s := &Server{
		ports:    ports,
		cfg:      cfg,
		validate: newValidator(),
		log:      logger.Named("http"),
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, "GET /{$}", s.handleRoot)
	s.handle(mux, "GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.handle(mux, "POST /api/v1/ingest", s.handleIngest)
	s.handle(mux, "POST /api/v1/query", s.handleQuery)
	s.handle(mux, "GET /api/v1/models/{provider}", s.handleListModels)

	s.handle(mux, "GET /api/v1/documents", s.handleListStoredDocuments)
	s.handle(mux, "DELETE /api/v1/documents/{id}", s.handleDeleteStoredDocument)
	s.handle(mux, "GET /api/v1/documents/{id}/chunks", s.handleListChunks)

	s.handle(mux, "GET /api/v1/db/status", s.handleDBStatus)
	s.handle(mux, "POST /api/v1/db/reindex", s.handleReindex)
	s.handle(mux, "DELETE /api/v1/db/clear", s.handleClearDB)

	s.handle(mux, "POST /api/v1/schema/upload", s.handleSchemaUpload)
	s.handle(mux, "POST /api/v1/schema/infer", s.handleSchemaInfer)
	s.handle(mux, "GET /api/v1/schema/documents", s.handleListDocuments)
	s.handle(mux, "GET /api/v1/schema/documents/{key}", s.handleGetDocument)
	s.handle(mux, "DELETE /api/v1/schema/documents/{key}", s.handleDeleteDocument)

	return requestID(mux)
}

// handle registers h with access logging and metrics labelled by pattern.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(pattern, recoverer(h)))
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	logger.Info("HTTP API stopped")
	return nil
}

// RootResponse is returned by GET /.
type RootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{Message: "docrag API is running", Version: s.cfg.Version})
}
