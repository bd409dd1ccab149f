// Package markdown extracts readable text from Markdown uploads.
//
// The document is parsed into a goldmark AST (with the GFM extensions) and
// the text nodes are written out block by block. Formatting markers, link
// targets, images and raw HTML are dropped; code is kept verbatim.
package markdown

import (
	"context"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/custodia-labs/docrag/internal/core/ports/driven"
	"github.com/custodia-labs/docrag/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.TextExtractor = (*Normaliser)(nil)

var multiNewlines = regexp.MustCompile(`\n{3,}`)

// Normaliser handles Markdown documents.
type Normaliser struct {
	md goldmark.Markdown
}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Extensions returns the extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{".md", ".markdown"}
}

// Extract converts Markdown to plain text.
func (n *Normaliser) Extract(ctx context.Context, _ string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	source := []byte(plaintext.Normalise(string(data)))
	return n.stripMarkdown(source), nil
}

// stripMarkdown walks the parsed document and collects its text.
// Top-level blocks are separated by a blank line so the chunker can split on them.
func (n *Normaliser) stripMarkdown(source []byte) string {
	doc := n.md.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		switch v := node.(type) {
		case *ast.Document:
			return ast.WalkContinue, nil
		case *ast.Image, *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				b.Write(v.Segment.Value(source))
				if v.SoftLineBreak() || v.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
			return ast.WalkContinue, nil
		case *ast.String:
			if entering {
				b.Write(v.Value)
			}
			return ast.WalkContinue, nil
		case *ast.AutoLink:
			if entering {
				b.Write(v.Label(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := node.Lines()
				for i := 0; i < lines.Len(); i++ {
					segment := lines.At(i)
					b.Write(segment.Value(source))
				}
			}
		case *east.TableCell:
			if entering && node.PreviousSibling() != nil {
				b.WriteByte('\t')
			}
			return ast.WalkContinue, nil
		}

		if !entering && node.Type() == ast.TypeBlock {
			endLine(&b)
			if parent := node.Parent(); parent != nil && parent.Kind() == ast.KindDocument {
				b.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})

	content := multiNewlines.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(content)
}

func endLine(b *strings.Builder) {
	if s := b.String(); s != "" && s[len(s)-1] != '\n' {
		b.WriteByte('\n')
	}
}
