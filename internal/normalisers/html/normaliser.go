package html

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
	"github.com/custodia-labs/docrag/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.TextExtractor = (*Normaliser)(nil)

// Normaliser handles HTML documents.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Extensions returns the extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{".html", ".htm"}
}

// Extract parses the document and returns its visible text.
func (n *Normaliser) Extract(ctx context.Context, _ string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	root, err := xhtml.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w: %v", domain.ErrInvalidInput, err)
	}
	return stripHTML(root), nil
}

var (
	multiSpaces = regexp.MustCompile(`[ \t\f\v]+`)

	// Subtrees that never carry readable text.
	skipped = map[atom.Atom]bool{
		atom.Head:     true,
		atom.Script:   true,
		atom.Style:    true,
		atom.Noscript: true,
		atom.Svg:      true,
		atom.Template: true,
		atom.Iframe:   true,
	}

	// Elements rendered on their own line.
	blocks = map[atom.Atom]bool{
		atom.P: true, atom.Div: true, atom.Br: true, atom.Hr: true,
		atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
		atom.Li: true, atom.Tr: true, atom.Blockquote: true, atom.Pre: true, atom.Table: true,
		atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
		atom.Ul: true, atom.Ol: true, atom.Dt: true, atom.Dd: true,
	}
)

// stripHTML collects text nodes in document order.
func stripHTML(root *xhtml.Node) string {
	var b strings.Builder

	var walk func(*xhtml.Node)
	walk = func(node *xhtml.Node) {
		switch node.Type {
		case xhtml.TextNode:
			b.WriteString(node.Data)
			return
		case xhtml.ElementNode:
			if skipped[node.DataAtom] {
				return
			}
			if node.DataAtom == atom.Td || node.DataAtom == atom.Th {
				b.WriteString(" ")
			}
		case xhtml.CommentNode:
			return
		}

		block := node.Type == xhtml.ElementNode && blocks[node.DataAtom]
		if block {
			b.WriteString("\n")
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if block {
			b.WriteString("\n")
		}
	}
	walk(root)

	content := plaintext.Normalise(b.String())
	content = multiSpaces.ReplaceAllString(content, " ")

	// Trim each line and remove empty lines
	lines := strings.Split(content, "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}
	return strings.Join(result, "\n")
}
