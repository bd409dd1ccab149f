// Package plaintext extracts text from .txt uploads.
package plaintext

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/docrag/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.TextExtractor = (*Normaliser)(nil)

const byteOrderMark = "\uFEFF"

// Normaliser handles plain text files.
type Normaliser struct{}

// New creates a new plaintext normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Extensions returns the extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{".txt"}
}

// Extract decodes the upload as UTF-8. A leading byte order mark is dropped,
// invalid sequences are replaced and line endings are normalised to "\n".
func (n *Normaliser) Extract(ctx context.Context, _ string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return Normalise(string(data)), nil
}

// Normalise cleans decoded text. Other normalisers reuse it on their output.
func Normalise(content string) string {
	content = strings.TrimPrefix(content, byteOrderMark)
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, string(utf8.RuneError))
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return content
}
