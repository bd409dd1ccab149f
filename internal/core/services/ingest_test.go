package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
)

type ingestFixture struct {
	emb    *mockEmbeddingService
	store  *mockChunkStore
	index  *mockVectorIndex
	schema *mockSchemaService
}

func newIngestFixture(t *testing.T) (*IngestionPipeline, *ingestFixture) {
	t.Helper()
	f := &ingestFixture{
		emb:    newMockEmbedding(4),
		store:  newMockChunkStore(),
		index:  newMockVectorIndex(),
		schema: &mockSchemaService{},
	}
	embedder, _ := newTestEmbedder(t, f.emb, EmbedderConfig{})
	p := NewIngestionPipeline(&mockExtractors{}, paragraphChunker{}, embedder, f.store, f.index, f.schema, IngestConfig{})
	return p, f
}

const threeParagraphs = "Alpha paragraph.\n\nBeta paragraph.\n\nGamma paragraph."

func TestIngest_Complete(t *testing.T) {
	p, f := newIngestFixture(t)

	res, err := p.Ingest(context.Background(), domain.IngestRequest{
		Filename: "notes.txt",
		Content:  []byte(threeParagraphs),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.IngestComplete, res.State)
	assert.False(t, res.Degraded)
	assert.Equal(t, "success", res.Status())
	assert.Equal(t, 3, res.ChunksCreated)
	assert.Equal(t, domain.AIProviderOllama, res.ProviderUsed)
	assert.NotEmpty(t, res.DocumentID)
	assert.Nil(t, res.Schema)

	// One batch call for all chunks
	require.Equal(t, 1, f.emb.callCount())
	assert.Equal(t, []string{"Alpha paragraph.", "Beta paragraph.", "Gamma paragraph."}, f.emb.batches[0])

	// Persisted in order with derived IDs
	require.Len(t, f.store.docs, 1)
	assert.Equal(t, res.DocumentID, f.store.docs[0].ID)
	assert.Equal(t, domain.FileTypeText, f.store.docs[0].FileType)
	assert.Equal(t, []string{
		domain.ChunkID(res.DocumentID, 0),
		domain.ChunkID(res.DocumentID, 1),
		domain.ChunkID(res.DocumentID, 2),
	}, f.store.order)
	for _, c := range f.store.chunks {
		assert.Len(t, c.Embedding, 4)
	}

	// Index ensured and vectors written
	require.NotNil(t, f.index.spec)
	assert.Equal(t, driven.IndexSpec{Name: "document_embeddings", Dimensions: 4, Similarity: "cosine"}, *f.index.spec)
	assert.Len(t, f.index.vectors, 3)
}

func TestIngest_PreExtractedText(t *testing.T) {
	p, f := newIngestFixture(t)

	res, err := p.Ingest(context.Background(), domain.IngestRequest{
		Filename: "page.html",
		Text:     "Already extracted.",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunksCreated)
	assert.Equal(t, 1, f.store.saves)
}

func TestIngest_UnknownProviderFailsBeforeWork(t *testing.T) {
	p, f := newIngestFixture(t)

	_, err := p.Ingest(context.Background(), domain.IngestRequest{
		Filename:          "notes.txt",
		Content:           []byte(threeParagraphs),
		EmbeddingProvider: &domain.ProviderOverride{Provider: "anthropic"},
	})

	var unknown *domain.UnknownProviderError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, domain.RoleEmbedding, unknown.Role)
	assert.Equal(t, 0, f.emb.callCount())
	assert.Equal(t, 0, f.store.saves)
}

func TestIngest_UnsupportedFileType(t *testing.T) {
	p, f := newIngestFixture(t)

	_, err := p.Ingest(context.Background(), domain.IngestRequest{
		Filename: "archive.zip",
		Content:  []byte("PK"),
	})
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)
	assert.Equal(t, 0, f.emb.callCount())
}

func TestIngest_EmptyTextIsValidationError(t *testing.T) {
	p, f := newIngestFixture(t)

	_, err := p.Ingest(context.Background(), domain.IngestRequest{
		Filename: "blank.txt",
		Content:  []byte("   \n\n  "),
	})

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, domain.CodeValidation, domain.ErrorCode(err))
	assert.Equal(t, 0, f.emb.callCount())
}

func TestIngest_MissingFilename(t *testing.T) {
	p, _ := newIngestFixture(t)

	_, err := p.Ingest(context.Background(), domain.IngestRequest{Text: "hello"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIngest_StoreUnavailableDegrades(t *testing.T) {
	p, f := newIngestFixture(t)
	f.store.saveErr = &domain.StoreUnavailableError{Op: "begin", Err: errors.New("connection refused")}

	res, err := p.Ingest(context.Background(), domain.IngestRequest{
		Filename: "notes.txt",
		Content:  []byte(threeParagraphs),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.IngestDegraded, res.State)
	assert.True(t, res.Degraded)
	assert.Equal(t, "degraded", res.Status())
	assert.Contains(t, res.DegradedReason, "connection refused")
	assert.Equal(t, 3, res.ChunksCreated)
	assert.Equal(t, 0, f.index.ensures, "index is not touched when nothing was persisted")
}

func TestIngest_NoStoreDegrades(t *testing.T) {
	emb := newMockEmbedding(4)
	embedder, _ := newTestEmbedder(t, emb, EmbedderConfig{})
	p := NewIngestionPipeline(&mockExtractors{}, paragraphChunker{}, embedder, nil, nil, nil, IngestConfig{})

	res, err := p.Ingest(context.Background(), domain.IngestRequest{Filename: "a.txt", Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, domain.IngestDegraded, res.State)
	assert.Equal(t, 1, emb.callCount())
}

func TestIngest_PersistFailure(t *testing.T) {
	p, f := newIngestFixture(t)
	f.store.saveErr = errors.New("constraint violation")

	res, err := p.Ingest(context.Background(), domain.IngestRequest{
		Filename: "notes.txt",
		Content:  []byte(threeParagraphs),
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "persist")
	assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestIngest_IndexDimensionMismatch(t *testing.T) {
	p, f := newIngestFixture(t)
	f.index.spec = &driven.IndexSpec{Name: "document_embeddings", Dimensions: 768, Similarity: "cosine"}

	_, err := p.Ingest(context.Background(), domain.IngestRequest{
		Filename: "notes.txt",
		Content:  []byte(threeParagraphs),
	})

	var mismatch *domain.DimensionMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 768, mismatch.Expected)
	assert.Equal(t, 4, mismatch.Got)
	assert.Empty(t, f.index.vectors)
}

func TestIngest_IndexUnavailableDegrades(t *testing.T) {
	p, f := newIngestFixture(t)
	f.index.ensureErr = domain.ErrVectorIndexUnavailable

	res, err := p.Ingest(context.Background(), domain.IngestRequest{
		Filename: "notes.txt",
		Content:  []byte(threeParagraphs),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.IngestDegraded, res.State)
	assert.Equal(t, 1, f.store.saves)
}

func TestIngest_EnsureIndexIsIdempotent(t *testing.T) {
	p, f := newIngestFixture(t)

	for i := 0; i < 2; i++ {
		res, err := p.Ingest(context.Background(), domain.IngestRequest{Filename: "a.txt", Text: threeParagraphs})
		require.NoError(t, err)
		assert.Equal(t, domain.IngestComplete, res.State)
	}
	assert.Equal(t, 2, f.index.ensures)
	assert.Len(t, f.index.vectors, 6)
}

func TestIngest_EmbeddingFailureIsNotPersisted(t *testing.T) {
	p, f := newIngestFixture(t)
	f.emb.errs = []error{errors.New("model not found")}

	_, err := p.Ingest(context.Background(), domain.IngestRequest{
		Filename: "notes.txt",
		Content:  []byte(threeParagraphs),
	})

	var perr *domain.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 0, f.store.saves)
}

func TestIngest_InferSchemaUsesDocumentHead(t *testing.T) {
	p, f := newIngestFixture(t)
	text := strings.Repeat("word ", 1000) // 5000 chars

	res, err := p.Ingest(context.Background(), domain.IngestRequest{
		Filename:    "long.txt",
		Text:        text,
		InferSchema: true,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Schema)
	assert.Equal(t, []string{"Person"}, res.Schema.NodeLabels)

	require.Len(t, f.schema.requests, 1)
	req := f.schema.requests[0]
	assert.Len(t, req.Text, DefaultSchemaSampleChars)
	require.NotNil(t, req.SamplePercentage)
	assert.Equal(t, 100.0, *req.SamplePercentage)
}

func TestIngest_ConcurrentDocuments(t *testing.T) {
	p, f := newIngestFixture(t)

	const n = 8
	var wg sync.WaitGroup
	results := make([]*domain.IngestResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Ingest(context.Background(), domain.IngestRequest{
				Filename: "doc.txt",
				Text:     threeParagraphs,
			})
		}(i)
	}
	wg.Wait()

	ids := make(map[string]bool)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, domain.IngestComplete, results[i].State)
		ids[results[i].DocumentID] = true
	}
	assert.Len(t, ids, n)
	assert.Len(t, f.store.chunks, 3*n)
}

func TestIngest_Supports(t *testing.T) {
	p, _ := newIngestFixture(t)
	assert.True(t, p.Supports("a.md"))
	assert.False(t, p.Supports("a.pdf"))
}

func TestHeadRunes(t *testing.T) {
	assert.Equal(t, "", headRunes("abc", 0))
	assert.Equal(t, "ab", headRunes("abc", 2))
	assert.Equal(t, "abc", headRunes("abc", 10))
	assert.Equal(t, "héł", headRunes("héłło", 3))
}
