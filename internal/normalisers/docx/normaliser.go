// Package docx extracts text from Word (.docx) documents.
package docx

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nguyenthenguyen/docx"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
	"github.com/custodia-labs/docrag/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.TextExtractor = (*Normaliser)(nil)

// Normaliser handles DOCX documents.
type Normaliser struct{}

// New creates a new DOCX normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Extensions returns the extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{".docx"}
}

// Extract opens the archive and returns the body text, one paragraph per line.
func (n *Normaliser) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read docx %s: %w: %v", filename, domain.ErrInvalidInput, err)
	}
	defer r.Close()

	text, err := parseDocumentXML(r.Editable().GetContent())
	if err != nil {
		return "", fmt.Errorf("parse docx %s: %w: %v", filename, domain.ErrInvalidInput, err)
	}
	return plaintext.Normalise(text), nil
}

// parseDocumentXML walks word/document.xml and keeps the text runs.
// Element names are matched without their "w:" namespace prefix.
func parseDocumentXML(content string) (string, error) {
	decoder := xml.NewDecoder(strings.NewReader(content))

	var (
		result strings.Builder
		inText bool
	)
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch el := token.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				result.WriteString("\t")
			case "br", "cr":
				result.WriteString("\n")
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				result.WriteString("\n")
			case "tc":
				result.WriteString("\t")
			}
		case xml.CharData:
			if inText {
				result.Write(el)
			}
		}
	}

	// Trim trailing cell separators left on table rows.
	lines := strings.Split(result.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\t ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
