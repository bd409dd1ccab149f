package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/logger"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code"`
}

// statusFor maps a stable error code onto an HTTP status.
func statusFor(code string) int {
	switch code {
	case domain.CodeValidation:
		return http.StatusUnprocessableEntity
	case domain.CodeUnsupportedType:
		return http.StatusUnsupportedMediaType
	case domain.CodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.CodeUnknownProvider, domain.CodeMissingCredential:
		return http.StatusBadRequest
	case domain.CodeCacheMiss, domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeStoreUnavailable, domain.CodeUnavailable:
		return http.StatusServiceUnavailable
	case domain.CodeDimensionMismatch:
		return http.StatusConflict
	case domain.CodeProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {detail, error_code}.
func writeError(w http.ResponseWriter, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		err = domain.ErrDocumentTooLarge
	}

	code := domain.ErrorCode(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed: %v", err)
	}
	writeJSON(w, status, ErrorResponse{Detail: err.Error(), ErrorCode: code})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Writing response: %v", err)
	}
}
