// Package xlsx extracts spreadsheet cells from Excel workbooks.
//
// Each sheet becomes a "## Sheet: <name>" heading followed by its rows,
// cells separated by tabs. Empty rows are skipped.
package xlsx

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.TextExtractor = (*Normaliser)(nil)

// Normaliser handles XLSX workbooks.
type Normaliser struct{}

// New creates a new XLSX normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Extensions returns the extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{".xlsx"}
}

// Extract renders every sheet as tab-separated text.
func (n *Normaliser) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open workbook %s: %w: %v", filename, domain.ErrInvalidInput, err)
	}
	defer f.Close()

	sheets := make([]string, 0, f.SheetCount)
	for _, name := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := f.GetRows(name)
		if err != nil {
			return "", fmt.Errorf("read sheet %q of %s: %w", name, filename, err)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "## Sheet: %s\n", name)
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t")
			if strings.TrimSpace(line) == "" {
				continue
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		sheets = append(sheets, strings.TrimRight(b.String(), "\n"))
	}

	return strings.Join(sheets, "\n\n"), nil
}
