package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkID(t *testing.T) {
	assert.Equal(t, "doc-1-chunk-0", ChunkID("doc-1", 0))
	assert.Equal(t, "doc-1-chunk-12", ChunkID("doc-1", 12))
}

func TestFileTypeOf(t *testing.T) {
	tests := map[string]FileType{
		"notes.txt":    FileTypeText,
		"REPORT.PDF":   FileTypePDF,
		"readme.md":    FileTypeMarkdown,
		"a.markdown":   FileTypeMarkdown,
		"page.htm":     FileTypeHTML,
		"memo.docx":    FileTypeDOCX,
		"sheet.xlsx":   FileTypeXLSX,
		"archive.zip":  FileTypeUnknown,
		"no-extension": FileTypeUnknown,
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, FileTypeOf(name))
		})
	}
}

func TestIngestState_IsTerminal(t *testing.T) {
	assert.True(t, IngestComplete.IsTerminal())
	assert.True(t, IngestDegraded.IsTerminal())
	assert.True(t, IngestFailed.IsTerminal())
	assert.False(t, IngestEmbedded.IsTerminal())
}

func TestIngestResult_Status(t *testing.T) {
	assert.Equal(t, "success", (&IngestResult{}).Status())
	assert.Equal(t, "degraded", (&IngestResult{Degraded: true}).Status())
}
