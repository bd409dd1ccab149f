package markdown

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docrag/internal/core/ports/driven"
)

func TestNew(t *testing.T) {
	normaliser := New()
	require.NotNil(t, normaliser)
	assert.IsType(t, &Normaliser{}, normaliser)
}

func TestExtensions(t *testing.T) {
	extensions := New().Extensions()
	assert.Contains(t, extensions, ".md")
	assert.Contains(t, extensions, ".markdown")
	assert.Len(t, extensions, 2)
}

func TestStripMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "headings removed",
			input:    "# Title\n## Subtitle\n### Third",
			expected: "Title\n\nSubtitle\n\nThird",
		},
		{
			name:     "bold removed",
			input:    "This is **bold** text",
			expected: "This is bold text",
		},
		{
			name:     "links converted",
			input:    "Click [here](https://example.com)",
			expected: "Click here",
		},
		{
			name:     "images removed",
			input:    "See ![alt text](image.png) here",
			expected: "See  here",
		},
		{
			name:     "code blocks kept",
			input:    "Before\n```go\ncode here\n```\nAfter",
			expected: "Before\n\ncode here\n\nAfter",
		},
		{
			name:     "inline code kept",
			input:    "Use `code` here",
			expected: "Use code here",
		},
		{
			name:     "blockquotes cleaned",
			input:    "> This is a quote",
			expected: "This is a quote",
		},
		{
			name:     "list markers removed",
			input:    "- Item 1\n- Item 2",
			expected: "Item 1\nItem 2",
		},
		{
			name:     "numbered list markers removed",
			input:    "1. First\n2. Second",
			expected: "First\nSecond",
		},
		{
			name:     "soft line breaks preserved",
			input:    "line one\nline two",
			expected: "line one\nline two",
		},
		{
			name:     "raw html dropped",
			input:    "<div>hidden</div>\n\nVisible",
			expected: "Visible",
		},
	}

	n := New()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, n.stripMarkdown([]byte(tc.input)))
		})
	}
}

func TestExtract_Table(t *testing.T) {
	input := "| Name | Role |\n|------|------|\n| Ada | Engineer |\n"

	text, err := New().Extract(context.Background(), "table.md", []byte(input))
	require.NoError(t, err)
	assert.Equal(t, "Name\tRole\nAda\tEngineer", text)
}

func TestExtract_ComplexMarkdown(t *testing.T) {
	complexMarkdown := `# Main Title

## Section 1

This is a paragraph with **bold** and *italic* text.

- List item 1
- List item 2
  - Nested item

### Subsection 1.1

` + "```go" + `
func main() {}
` + "```" + `

[A link](https://example.com) and ~~struck~~ words.
`

	text, err := New().Extract(context.Background(), "complex.md", []byte(complexMarkdown))
	require.NoError(t, err)

	assert.Contains(t, text, "Main Title")
	assert.Contains(t, text, "This is a paragraph with bold and italic text.")
	assert.Contains(t, text, "Nested item")
	assert.Contains(t, text, "func main() {}")
	assert.Contains(t, text, "A link and struck words.")
	assert.NotContains(t, text, "**")
	assert.NotContains(t, text, "https://example.com")
	assert.NotContains(t, text, "```")
}

func TestExtract_Empty(t *testing.T) {
	text, err := New().Extract(context.Background(), "empty.md", nil)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestInterfaceCompliance(t *testing.T) {
	var _ driven.TextExtractor = (*Normaliser)(nil)
}

func BenchmarkStripMarkdown(b *testing.B) {
	n := New()
	content := []byte(`# Heading

Paragraph with **bold** and *italic*.

- List item 1
- List item 2

[Link](https://example.com)

` + "```" + `
code block
` + "```")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = n.stripMarkdown(content)
	}
}
