// Package providerhttp holds the error classification shared by the HTTP
// provider adapters. Retryable failures wrap domain.ErrTransient so the core
// can decide whether to retry without knowing about HTTP.
package providerhttp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/custodia-labs/docrag/internal/core/domain"
)

// maxBodyInError bounds how much of an error body ends up in messages.
const maxBodyInError = 512

// StatusError is a non-2xx response from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: API returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Is matches domain.ErrTransient for retryable statuses.
func (e *StatusError) Is(target error) bool {
	return target == domain.ErrTransient && e.Temporary()
}

// CheckStatus returns a *StatusError for non-2xx responses.
func CheckStatus(provider string, resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxBodyInError {
		text = text[:maxBodyInError] + "..."
	}
	return &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: text}
}

// TransportError wraps a failed round trip, marking timeouts and network
// errors as transient. Cancellation by the caller is never transient.
func TransportError(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: request cancelled: %w", provider, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: send request: %w: %w", provider, domain.ErrTransient, err)
	}
	return fmt.Errorf("%s: send request: %w", provider, err)
}
