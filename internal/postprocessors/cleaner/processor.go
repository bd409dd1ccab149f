// Package cleaner tidies chunk text after splitting.
package cleaner

import (
	"context"
	"regexp"
	"strings"

	"github.com/custodia-labs/docrag/internal/core/domain"
)

// blankRuns matches three or more consecutive newlines, allowing trailing spaces.
var blankRuns = regexp.MustCompile(`\n[ \t]*\n([ \t]*\n)+`)

// Processor trims chunk text, collapses runs of blank lines and drops
// chunks left empty.
type Processor struct{}

// New creates a cleaner.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "cleaner"
}

// Process cleans the incoming chunks.
func (p *Processor) Process(_ context.Context, _ *domain.Document, _ string, chunks []domain.Chunk) ([]domain.Chunk, error) {
	out := chunks[:0:0]
	for _, c := range chunks {
		text := strings.TrimSpace(blankRuns.ReplaceAllString(c.Text, "\n\n"))
		if text == "" {
			continue
		}
		c.Text = text
		out = append(out, c)
	}
	return out, nil
}
