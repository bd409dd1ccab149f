package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedFileType indicates an upload with an extension no extractor handles.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrDocumentTooLarge indicates an upload above the configured size limit.
	ErrDocumentTooLarge = errors.New("document too large")

	// ErrCacheMiss indicates a cached document key is absent or expired.
	ErrCacheMiss = errors.New("document not found or expired")

	// ErrStoreUnavailable indicates the persistence store is disabled or unreachable.
	// Callers degrade instead of failing when they see it.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrTransient marks an upstream failure that is worth retrying
	// (timeouts, connection resets, 5xx and 429 responses).
	ErrTransient = errors.New("transient upstream failure")

	// ErrNoRelevantDocuments indicates retrieval produced nothing to answer from.
	ErrNoRelevantDocuments = errors.New("no relevant documents found for the given question")

	// ErrLLMUnavailable indicates the generation provider could not be reached.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding provider could not be reached.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index backend is not usable.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")
)

// ValidationError is a user-correctable input problem.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap allows errors.Is(err, ErrInvalidInput).
func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// UnknownProviderError is returned when a provider name is not recognised for a role.
type UnknownProviderError struct {
	Role ProviderRole
	Name string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown %s provider %q (supported: %s)",
		e.Role, e.Name, strings.Join(providerNames(ProvidersFor(e.Role)), ", "))
}

// MissingCredentialError is returned when a provider that needs an API key has none.
type MissingCredentialError struct {
	Provider AIProvider
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("provider %q requires an API key but none is configured", e.Provider)
}

// ProviderError is an upstream failure that survived the retry budget.
type ProviderError struct {
	Provider AIProvider
	Op       string
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Provider, e.Op, e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// DimensionMismatchError reports a vector whose length disagrees with the index.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// StoreUnavailableError wraps the underlying cause of a store outage.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, ErrStoreUnavailable)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStoreUnavailable, e.Err)
}

// Is matches ErrStoreUnavailable.
func (e *StoreUnavailableError) Is(target error) bool { return target == ErrStoreUnavailable }

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// RetrievalError is returned when both the vector and the textual path failed.
type RetrievalError struct {
	VectorErr error
	TextErr   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed: vector search: %v; text search: %v", e.VectorErr, e.TextErr)
}

func (e *RetrievalError) Unwrap() []error {
	return []error{e.VectorErr, e.TextErr}
}

// GenerationError is returned when the generation provider failed after retries.
type GenerationError struct {
	Provider AIProvider
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation with %s failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Stable error codes exposed to API callers.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeUnsupportedType   = "UNSUPPORTED_FILE_TYPE"
	CodeTooLarge          = "DOCUMENT_TOO_LARGE"
	CodeUnknownProvider   = "UNKNOWN_PROVIDER"
	CodeMissingCredential = "MISSING_CREDENTIAL"
	CodeProvider          = "PROVIDER_ERROR"
	CodeDimensionMismatch = "DIMENSION_MISMATCH"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
	CodeUnavailable       = "PROVIDER_UNAVAILABLE"
	CodeCacheMiss         = "CACHE_MISS"
	CodeRetrieval         = "RETRIEVAL_ERROR"
	CodeGeneration        = "GENERATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeInternal          = "INTERNAL_ERROR"
)

// ErrorCode maps an error onto its stable code.
func ErrorCode(err error) string {
	var (
		unknownProvider   *UnknownProviderError
		missingCredential *MissingCredentialError
		dimension         *DimensionMismatchError
		retrieval         *RetrievalError
		generation        *GenerationError
		provider          *ProviderError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &unknownProvider):
		return CodeUnknownProvider
	case errors.As(err, &missingCredential):
		return CodeMissingCredential
	case errors.As(err, &dimension):
		return CodeDimensionMismatch
	case errors.As(err, &retrieval):
		return CodeRetrieval
	case errors.As(err, &generation):
		return CodeGeneration
	case errors.As(err, &provider):
		return CodeProvider
	case errors.Is(err, ErrUnsupportedFileType):
		return CodeUnsupportedType
	case errors.Is(err, ErrDocumentTooLarge):
		return CodeTooLarge
	case errors.Is(err, ErrCacheMiss):
		return CodeCacheMiss
	case errors.Is(err, ErrInvalidInput):
		return CodeValidation
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrVectorIndexUnavailable):
		return CodeStoreUnavailable
	case errors.Is(err, ErrLLMUnavailable), errors.Is(err, ErrEmbeddingUnavailable):
		return CodeUnavailable
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoRelevantDocuments):
		return CodeNotFound
	default:
		return CodeInternal
	}
}
