package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docrag/internal/core/domain"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "docrag-test-*")
	require.NoError(t, err)

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NotNil(t, store)

	cleanup := func() {
		assert.NoError(t, store.Close())
		assert.NoError(t, os.RemoveAll(tempDir))
	}

	return store, cleanup
}

// testDocument builds a document with n chunks whose embeddings are unit
// vectors along axis i%dims.
func testDocument(id string, dims int, texts ...string) (domain.Document, []domain.Chunk) {
	doc := domain.Document{
		ID:         id,
		Filename:   id + ".txt",
		FileType:   domain.FileTypeText,
		IngestedAt: time.Now().UTC().Truncate(time.Second),
	}
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		vec := make([]float32, dims)
		vec[i%dims] = 1
		chunks[i] = domain.Chunk{
			ID:         domain.ChunkID(id, i),
			DocumentID: id,
			Text:       text,
			Index:      i,
			Embedding:  vec,
		}
	}
	return doc, chunks
}

// ==================== Store Creation and Initialization Tests ====================

func TestNewStore_ErrorHandling(t *testing.T) {
	_, err := NewStore("/invalid\x00path")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "creating data directory")
}

func TestNewStore_Success(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "docrag-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	dbPath := filepath.Join(tempDir, "docrag.db")
	assert.Equal(t, dbPath, store.Path())
	assert.FileExists(t, dbPath)
	assert.NoError(t, store.db.Ping())
}

func TestNewStore_DirectoryCreation(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "docrag-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	nestedDir := filepath.Join(tempDir, "nested", "path", "to", "db")
	store, err := NewStore(nestedDir)
	require.NoError(t, err)
	defer store.Close()

	assert.DirExists(t, nestedDir)
}

func TestNewStore_Migrations(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	var count int
	err := store.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	for _, table := range []string{"documents", "chunks", "chunk_next", "vector_indexes"} {
		var tableExists int
		err := store.db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&tableExists)
		require.NoError(t, err)
		assert.Equal(t, 1, tableExists, "table %s should exist", table)
	}
}

func TestNewStore_ReopenSkipsAppliedMigrations(t *testing.T) {
	tempDir := t.TempDir()

	first, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewStore(tempDir)
	require.NoError(t, err)
	defer second.Close()

	var count int
	require.NoError(t, second.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestNewStore_ForeignKeysEnabled(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	var fkEnabled int
	err := store.db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled)
	require.NoError(t, err)
	assert.Equal(t, 1, fkEnabled, "foreign keys should be enabled")
}

// ==================== ChunkStore Tests ====================

func TestChunkStore_SaveDocumentAndGetChunks(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	cs := store.ChunkStore()

	doc, chunks := testDocument("doc1", 3, "alpha", "beta", "gamma")
	require.NoError(t, cs.SaveDocument(ctx, doc, chunks))

	got, err := cs.GetChunks(ctx, []string{chunks[2].ID, "missing", chunks[0].ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "gamma", got[0].Text)
	assert.Equal(t, 2, got[0].Index)
	assert.Equal(t, "doc1", got[0].DocumentID)
	assert.Equal(t, []float32{0, 0, 1}, got[0].Embedding)
	assert.Equal(t, "alpha", got[1].Text)

	count, err := cs.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestChunkStore_GetChunksEmpty(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	got, err := store.ChunkStore().GetChunks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChunkStore_NextEdges(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	cs := store.ChunkStore()

	doc, chunks := testDocument("doc1", 2, "one", "two", "three")
	// Insertion order must not matter
	shuffled := []domain.Chunk{chunks[2], chunks[0], chunks[1]}
	require.NoError(t, cs.SaveDocument(ctx, doc, shuffled))

	next, err := cs.NextChunk(ctx, chunks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "two", next.Text)

	next, err = cs.NextChunk(ctx, next.ID)
	require.NoError(t, err)
	assert.Equal(t, "three", next.Text)

	_, err = cs.NextChunk(ctx, next.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = cs.NextChunk(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChunkStore_SaveDocumentIsAtomic(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	cs := store.ChunkStore()

	doc, chunks := testDocument("doc1", 2, "one", "two")
	chunks[1].DocumentID = "someone-else"

	err := cs.SaveDocument(ctx, doc, chunks)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	count, err := cs.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "no chunk from the failed transaction is visible")

	var docs int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&docs))
	assert.Equal(t, 0, docs)
}

func TestChunkStore_ResaveReplacesRows(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	cs := store.ChunkStore()

	doc, chunks := testDocument("doc1", 2, "old text")
	require.NoError(t, cs.SaveDocument(ctx, doc, chunks))
	chunks[0].Text = "new text"
	require.NoError(t, cs.SaveDocument(ctx, doc, chunks))

	got, err := cs.GetChunks(ctx, []string{chunks[0].ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new text", got[0].Text)

	count, err := cs.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestChunkStore_SaveDocumentRequiresID(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	err := store.ChunkStore().SaveDocument(context.Background(), domain.Document{}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestChunkStore_SearchText(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	cs := store.ChunkStore()

	doc, chunks := testDocument("doc1", 2,
		"Paris is the capital of France",
		"Berlin is the capital of Germany",
		"The Seine flows through Paris",
		"Nothing relevant here",
	)
	require.NoError(t, cs.SaveDocument(ctx, doc, chunks))

	hits, err := cs.SearchText(ctx, "capital of FRANCE", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Paris is the capital of France", hits[0].Chunk.Text)
	assert.Equal(t, "Berlin is the capital of Germany", hits[1].Chunk.Text)
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.Nil(t, hits[0].Chunk.Embedding)

	hits, err = cs.SearchText(ctx, "paris", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestChunkStore_SearchTextTiesKeepChunkOrder(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	cs := store.ChunkStore()

	doc, chunks := testDocument("doc1", 2, "red apple", "red cherry")
	require.NoError(t, cs.SaveDocument(ctx, doc, chunks))

	hits, err := cs.SearchText(ctx, "red", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, hits[0].Score, hits[1].Score)
	assert.Equal(t, "red apple", hits[0].Chunk.Text)
	assert.Equal(t, "red cherry", hits[1].Chunk.Text)
}

func TestChunkStore_SearchTextEdgeCases(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	cs := store.ChunkStore()

	doc, chunks := testDocument("doc1", 2, "100% pure_value")
	require.NoError(t, cs.SaveDocument(ctx, doc, chunks))

	hits, err := cs.SearchText(ctx, "   ...   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = cs.SearchText(ctx, "pure", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// Underscore and percent split terms and never reach LIKE unescaped
	hits, err = cs.SearchText(ctx, "pure_value", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestChunkStore_PingAfterClose(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	cs := store.ChunkStore()

	require.NoError(t, cs.Ping(context.Background()))
	require.NoError(t, store.Close())

	err = cs.Ping(context.Background())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = cs.CountChunks(context.Background())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestChunkStore_ContextCancellation(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc, chunks := testDocument("doc1", 2, "text")
	err := store.ChunkStore().SaveDocument(ctx, doc, chunks)
	assert.Error(t, err)
}

func TestChunkStore_ConcurrentWrites(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	cs := store.ChunkStore()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc, chunks := testDocument(fmt.Sprintf("doc%d", i), 2, "a", "b", "c")
			errs[i] = cs.SaveDocument(ctx, doc, chunks)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	count, err := cs.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 24, count)
}

func TestClassify(t *testing.T) {
	err := classify("saving chunk", errors.New("UNIQUE constraint failed"))
	assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "saving chunk")

	err = classify("begin", errors.New("database is locked (5) (SQLITE_BUSY)"))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

// ==================== Helper Tests ====================

func TestFloat32SliceToBytes(t *testing.T) {
	tests := []struct {
		name   string
		input  []float32
		output []byte
	}{
		{
			name:   "empty slice",
			input:  []float32{},
			output: nil,
		},
		{
			name:   "nil slice",
			input:  nil,
			output: nil,
		},
		{
			name:   "single value",
			input:  []float32{1.0},
			output: []byte{0x00, 0x00, 0x80, 0x3f},
		},
		{
			name:  "multiple values",
			input: []float32{0.0, 1.0, -1.0},
			output: []byte{
				0x00, 0x00, 0x00, 0x00, // 0.0
				0x00, 0x00, 0x80, 0x3f, // 1.0
				0x00, 0x00, 0x80, 0xbf, // -1.0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.output, float32SliceToBytes(tt.input))
		})
	}
}

func TestFloat32Roundtrip(t *testing.T) {
	original := []float32{0.1, 0.2, 0.3, -0.5, 100.5, -200.75}
	assert.Equal(t, original, bytesToFloat32Slice(float32SliceToBytes(original)))
	assert.Nil(t, bytesToFloat32Slice(nil))
}

func TestOchiai(t *testing.T) {
	q := tokenSet("red apple")

	assert.InDelta(t, 1.0, ochiai(q, "Apple, red!"), 1e-9)
	assert.InDelta(t, 0.5, ochiai(q, "red cherry"), 1e-9)
	assert.Equal(t, 0.0, ochiai(q, "blue sky"))
	assert.Equal(t, 0.0, ochiai(q, ""))
	assert.Equal(t, 0.0, ochiai(tokenSet(""), "red"))
}
