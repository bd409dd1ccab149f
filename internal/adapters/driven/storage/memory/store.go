// Package memory provides in-process implementations of the chunk store and
// vector index. Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
)

// Store holds documents, chunks and the NEXT relation in maps.
type Store struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
	chunks    map[string]domain.Chunk
	next      map[string]string
	order     []string
	closed    bool
	now       func() time.Time
}

var _ driven.ChunkStore = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		documents: make(map[string]domain.Document),
		chunks:    make(map[string]domain.Chunk),
		next:      make(map[string]string),
		now:       time.Now,
	}
}

// SaveDocument replaces the document and its chunks atomically.
func (s *Store) SaveDocument(_ context.Context, doc domain.Document, chunks []domain.Chunk) error {
	if doc.ID == "" {
		return domain.NewValidationError("document_id", "is required")
	}
	for _, c := range chunks {
		if c.DocumentID != doc.ID {
			return fmt.Errorf("%w: chunk %s belongs to document %s", domain.ErrInvalidInput, c.ID, c.DocumentID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &domain.StoreUnavailableError{Op: "saving document", Err: errClosed}
	}

	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = s.now().UTC()
	}
	s.dropChunksLocked(doc.ID)
	if _, exists := s.documents[doc.ID]; !exists {
		s.order = append(s.order, doc.ID)
	}
	s.documents[doc.ID] = doc

	sorted := append([]domain.Chunk(nil), chunks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	for i, c := range sorted {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = doc.IngestedAt
		}
		c.Embedding = append([]float32(nil), c.Embedding...)
		s.chunks[c.ID] = c
		if i > 0 {
			s.next[sorted[i-1].ID] = c.ID
		}
	}
	return nil
}

func (s *Store) dropChunksLocked(docID string) {
	for id, c := range s.chunks {
		if c.DocumentID == docID {
			delete(s.chunks, id)
			delete(s.next, id)
		}
	}
}

// GetChunks returns chunks in the order of ids, skipping unknown ones.
func (s *Store) GetChunks(_ context.Context, ids []string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &domain.StoreUnavailableError{Op: "querying chunks", Err: errClosed}
	}

	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// NextChunk follows the NEXT relation.
func (s *Store) NextChunk(_ context.Context, chunkID string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &domain.StoreUnavailableError{Op: "following next", Err: errClosed}
	}

	id, ok := s.next[chunkID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := s.chunks[id]
	return &c, nil
}

// SearchText ranks chunks sharing words with the query by term overlap.
// Ties keep document insertion order and chunk order.
func (s *Store) SearchText(_ context.Context, query string, limit int) ([]driven.TextHit, error) {
	terms := tokenSet(query)
	if len(terms) == 0 || limit <= 0 {
		return []driven.TextHit{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &domain.StoreUnavailableError{Op: "searching chunks", Err: errClosed}
	}

	hits := []driven.TextHit{}
	for _, c := range s.orderedChunksLocked() {
		score := overlap(terms, c.Text)
		if score == 0 {
			continue
		}
		c.Embedding = nil
		hits = append(hits, driven.TextHit{Chunk: c, Score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Store) orderedChunksLocked() []domain.Chunk {
	rank := make(map[string]int, len(s.order))
	for i, id := range s.order {
		rank[id] = i
	}
	out := make([]domain.Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentID != out[j].DocumentID {
			return rank[out[i].DocumentID] < rank[out[j].DocumentID]
		}
		return out[i].Index < out[j].Index
	})
	return out
}

// CountChunks returns the number of stored chunks.
func (s *Store) CountChunks(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, &domain.StoreUnavailableError{Op: "counting chunks", Err: errClosed}
	}
	return len(s.chunks), nil
}

// CountDocuments returns the number of stored documents.
func (s *Store) CountDocuments(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, &domain.StoreUnavailableError{Op: "counting documents", Err: errClosed}
	}
	return len(s.documents), nil
}

// ListDocuments returns documents newest first. Documents ingested at the
// same instant list the later save first.
func (s *Store) ListDocuments(_ context.Context) ([]domain.DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &domain.StoreUnavailableError{Op: "listing documents", Err: errClosed}
	}

	counts := make(map[string]int, len(s.documents))
	for _, c := range s.chunks {
		counts[c.DocumentID]++
	}
	docs := make([]domain.DocumentInfo, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		d := s.documents[s.order[i]]
		docs = append(docs, domain.DocumentInfo{
			ID:         d.ID,
			Filename:   d.Filename,
			FileType:   d.FileType,
			IngestedAt: d.IngestedAt,
			ChunkCount: counts[d.ID],
		})
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].IngestedAt.After(docs[j].IngestedAt) })
	return docs, nil
}

// ListChunks returns a document's chunks in position order.
func (s *Store) ListChunks(_ context.Context, documentID string, limit int) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &domain.StoreUnavailableError{Op: "listing chunks", Err: errClosed}
	}
	if _, ok := s.documents[documentID]; !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}

	out := s.documentChunksLocked(documentID)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteDocument removes a document and its chunks.
func (s *Store) DeleteDocument(_ context.Context, documentID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &domain.StoreUnavailableError{Op: "deleting document", Err: errClosed}
	}
	if _, ok := s.documents[documentID]; !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}

	chunks := s.documentChunksLocked(documentID)
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	s.dropChunksLocked(documentID)
	delete(s.documents, documentID)
	for i, id := range s.order {
		if id == documentID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return ids, nil
}

// Clear removes everything.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &domain.StoreUnavailableError{Op: "clearing store", Err: errClosed}
	}
	s.documents = make(map[string]domain.Document)
	s.chunks = make(map[string]domain.Chunk)
	s.next = make(map[string]string)
	s.order = nil
	return nil
}

func (s *Store) documentChunksLocked(documentID string) []domain.Chunk {
	out := []domain.Chunk{}
	for _, c := range s.chunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Ping fails once the store is closed.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &domain.StoreUnavailableError{Op: "ping", Err: errClosed}
	}
	return nil
}

// Close marks the store unavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// overlap is |Q ∩ T| / sqrt(|Q| * |T|).
func overlap(query map[string]struct{}, text string) float64 {
	words := tokenSet(text)
	if len(words) == 0 {
		return 0
	}
	shared := 0
	for t := range query {
		if _, ok := words[t]; ok {
			shared++
		}
	}
	return float64(shared) / math.Sqrt(float64(len(query))*float64(len(words)))
}
