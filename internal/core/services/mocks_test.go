package services

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
)

// mockEmbeddingService returns scripted results. Each EmbedBatch call pops
// the next error from errs; when errs is empty it succeeds.
type mockEmbeddingService struct {
	mu      sync.Mutex
	dims    int
	model   string
	errs    []error
	pingErr error
	calls   int
	batches [][]string
	vector  func(text string) []float32
}

func newMockEmbedding(dims int) *mockEmbeddingService {
	return &mockEmbeddingService{dims: dims, model: "mock-embed"}
}

func (m *mockEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *mockEmbeddingService) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.batches = append(m.batches, append([]string(nil), texts...))
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if m.vector != nil {
			out[i] = m.vector(text)
			continue
		}
		v := make([]float32, m.dims)
		for j := range v {
			v[j] = float32(len(text)%7 + j + 1)
		}
		out[i] = v
	}
	return out, nil
}

func (m *mockEmbeddingService) Dimensions() int            { return m.dims }
func (m *mockEmbeddingService) ModelName() string          { return m.model }
func (m *mockEmbeddingService) Ping(context.Context) error { return m.pingErr }
func (m *mockEmbeddingService) Close() error               { return nil }

func (m *mockEmbeddingService) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockLLMService pops scripted replies and errors in order.
type mockLLMService struct {
	mu      sync.Mutex
	model   string
	replies []string
	errs    []error
	prompts []string
	opts    []driven.GenerateOptions
	models  []string
	listErr error
}

func (m *mockLLMService) Generate(_ context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)
	m.opts = append(m.opts, opts)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return "", err
		}
	}
	if len(m.replies) == 0 {
		return "", nil
	}
	reply := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return reply, nil
}

func (m *mockLLMService) ModelName() string {
	if m.model == "" {
		return "mock-llm"
	}
	return m.model
}
func (m *mockLLMService) Ping(context.Context) error { return nil }
func (m *mockLLMService) Close() error               { return nil }

func (m *mockLLMService) ListModels(context.Context) ([]string, error) {
	return m.models, m.listErr
}

func (m *mockLLMService) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// mockFactory hands out the same mocks for every config and records builds.
type mockFactory struct {
	mu        sync.Mutex
	embedding *mockEmbeddingService
	llm       *mockLLMService
	built     []domain.ProviderConfig
}

func (f *mockFactory) NewEmbedding(cfg domain.ProviderConfig) (driven.EmbeddingService, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.built = append(f.built, cfg)
	return f.embedding, nil
}

func (f *mockFactory) NewLLM(cfg domain.ProviderConfig) (driven.LLMService, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.built = append(f.built, cfg)
	return f.llm, nil
}

func (f *mockFactory) buildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built)
}

// stubSource configures ollama with no key and the cloud providers from keys.
type stubSource struct {
	keys map[domain.AIProvider]string
}

func (s stubSource) ProviderConfig(role domain.ProviderRole, name domain.AIProvider, model string) domain.ProviderConfig {
	if model == "" {
		if role == domain.RoleEmbedding {
			model = domain.DefaultEmbeddingModels()[name]
		} else {
			model = domain.DefaultLLMModels()[name]
		}
	}
	return domain.ProviderConfig{Role: role, Name: name, Model: model, APIKey: s.keys[name]}
}

// newTestRegistry wires a registry over the mocks with ollama defaults.
func newTestRegistry(emb *mockEmbeddingService, llm *mockLLMService) (*ProviderRegistry, *mockFactory) {
	f := &mockFactory{embedding: emb, llm: llm}
	r := NewProviderRegistry(f, stubSource{keys: map[domain.AIProvider]string{
		domain.AIProviderOpenAI: "sk-test",
	}}, domain.AIProviderOllama, domain.AIProviderOllama)
	return r, f
}

// mockChunkStore keeps documents in memory.
type mockChunkStore struct {
	mu        sync.Mutex
	docs      []domain.Document
	chunks    map[string]domain.Chunk
	order     []string
	saveErr   error
	searchErr error
	pingErr   error
	countErr  error
	saves     int
}

func newMockChunkStore() *mockChunkStore {
	return &mockChunkStore{chunks: make(map[string]domain.Chunk)}
}

func (m *mockChunkStore) SaveDocument(_ context.Context, doc domain.Document, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.docs = append(m.docs, doc)
	for _, c := range chunks {
		m.chunks[c.ID] = c
		m.order = append(m.order, c.ID)
	}
	return nil
}

func (m *mockChunkStore) GetChunks(_ context.Context, ids []string) ([]domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockChunkStore) NextChunk(_ context.Context, id string) (*domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chunks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	next, ok := m.chunks[domain.ChunkID(c.DocumentID, c.Index+1)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &next, nil
}

func (m *mockChunkStore) SearchText(_ context.Context, query string, limit int) ([]driven.TextHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var hits []driven.TextHit
	for _, id := range m.order {
		c := m.chunks[id]
		if strings.Contains(strings.ToLower(c.Text), strings.ToLower(query)) {
			hits = append(hits, driven.TextHit{Chunk: c, Score: 1})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *mockChunkStore) CountChunks(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	return len(m.chunks), nil
}

func (m *mockChunkStore) CountDocuments(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	return len(m.docs), nil
}

func (m *mockChunkStore) ListDocuments(context.Context) ([]domain.DocumentInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.DocumentInfo, 0, len(m.docs))
	for i := len(m.docs) - 1; i >= 0; i-- {
		d := m.docs[i]
		info := domain.DocumentInfo{ID: d.ID, Filename: d.Filename, FileType: d.FileType, IngestedAt: d.IngestedAt}
		for _, c := range m.chunks {
			if c.DocumentID == d.ID {
				info.ChunkCount++
			}
		}
		out = append(out, info)
	}
	return out, nil
}

func (m *mockChunkStore) ListChunks(_ context.Context, docID string, limit int) ([]domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Chunk
	for _, id := range m.order {
		if c := m.chunks[id]; c.DocumentID == docID {
			out = append(out, c)
		}
	}
	if out == nil {
		return nil, domain.ErrNotFound
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockChunkStore) DeleteDocument(_ context.Context, docID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	kept := m.order[:0]
	for _, id := range m.order {
		if m.chunks[id].DocumentID == docID {
			ids = append(ids, id)
			delete(m.chunks, id)
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	if ids == nil {
		return nil, domain.ErrNotFound
	}
	return ids, nil
}

func (m *mockChunkStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = nil
	m.chunks = make(map[string]domain.Chunk)
	m.order = nil
	return nil
}

func (m *mockChunkStore) Ping(context.Context) error { return m.pingErr }
func (m *mockChunkStore) Close() error               { return nil }

// mockVectorIndex scores by dot product over upserted chunks.
type mockVectorIndex struct {
	mu        sync.Mutex
	spec      *driven.IndexSpec
	vectors   map[string][]float32
	ensures   int
	ensureErr error
	upsertErr error
	searchErr error
	hits      []driven.VectorHit
}

func newMockVectorIndex() *mockVectorIndex {
	return &mockVectorIndex{vectors: make(map[string][]float32)}
}

func (m *mockVectorIndex) EnsureIndex(_ context.Context, spec driven.IndexSpec) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensures++
	if m.ensureErr != nil {
		return false, m.ensureErr
	}
	if m.spec != nil {
		if m.spec.Dimensions != spec.Dimensions {
			return false, &domain.DimensionMismatchError{Expected: m.spec.Dimensions, Got: spec.Dimensions}
		}
		return false, nil
	}
	s := spec
	m.spec = &s
	return true, nil
}

func (m *mockVectorIndex) Describe(context.Context) (*driven.IndexSpec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.spec == nil {
		return nil, nil
	}
	s := *m.spec
	return &s, nil
}

func (m *mockVectorIndex) Upsert(_ context.Context, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	for _, c := range chunks {
		m.vectors[c.ID] = c.Embedding
	}
	return nil
}

func (m *mockVectorIndex) Search(_ context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if m.hits != nil {
		return m.hits, nil
	}
	var hits []driven.VectorHit
	for id, v := range m.vectors {
		var dot float64
		for i := range v {
			if i < len(query) {
				dot += float64(v[i]) * float64(query[i])
			}
		}
		hits = append(hits, driven.VectorHit{ChunkID: id, Similarity: dot})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *mockVectorIndex) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.vectors, id)
	}
	return nil
}

func (m *mockVectorIndex) Drop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spec = nil
	m.vectors = make(map[string][]float32)
	return nil
}

func (m *mockVectorIndex) Close() error { return nil }

// mockPromptStore returns templates from a map, or an error when absent.
type mockPromptStore map[string]string

func (m mockPromptStore) Load(name string) (string, error) {
	if p, ok := m[name]; ok {
		return p, nil
	}
	return "", domain.ErrNotFound
}

func (m mockPromptStore) Reload() {}

// mockExtractors accepts .txt and .md and returns the content as text.
type mockExtractors struct {
	err error
}

func (m *mockExtractors) Extract(_ context.Context, filename string, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if !m.Supports(filename) {
		return "", domain.ErrUnsupportedFileType
	}
	return string(data), nil
}

func (m *mockExtractors) Supports(filename string) bool {
	return strings.HasSuffix(filename, ".txt") || strings.HasSuffix(filename, ".md")
}

func (m *mockExtractors) Extensions() []string { return []string{".md", ".txt"} }

// paragraphChunker splits on blank lines and numbers chunks like the real pipeline.
type paragraphChunker struct{}

func (paragraphChunker) Process(_ context.Context, doc *domain.Document, text string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for _, part := range strings.Split(text, "\n\n") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i := len(chunks)
		chunks = append(chunks, domain.Chunk{
			ID:         domain.ChunkID(doc.ID, i),
			DocumentID: doc.ID,
			Text:       part,
			Index:      i,
		})
	}
	return chunks, nil
}

// mockSchemaService records requests and returns a fixed schema.
type mockSchemaService struct {
	mu       sync.Mutex
	requests []domain.SchemaRequest
}

func (m *mockSchemaService) Infer(_ context.Context, req domain.SchemaRequest) domain.SchemaInference {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return domain.SchemaInference{
		NodeLabels:        []string{"Person"},
		RelationshipTypes: []string{"KNOWS"},
		Source:            domain.SchemaSourceLLM,
	}
}
