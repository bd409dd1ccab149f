package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driving"
	"github.com/custodia-labs/docrag/internal/logger"
	"github.com/custodia-labs/docrag/internal/metrics"
)

// Ensure DocumentCache implements the interface.
var _ driving.DocumentCache = (*DocumentCache)(nil)

const bytesPerMB = 1024 * 1024

// CacheConfig bounds the document cache.
type CacheConfig struct {
	// TTL is how long an entry lives after it is stored.
	TTL time.Duration

	// MaxDocuments caps the number of live entries.
	MaxDocuments int

	// MaxDocumentBytes caps the size of one entry's text.
	MaxDocumentBytes int

	// CleanupInterval is the sweeper period.
	CleanupInterval time.Duration
}

// DefaultCacheConfig returns the default cache bounds.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:              30 * time.Minute,
		MaxDocuments:     100,
		MaxDocumentBytes: 50 * bytesPerMB,
		CleanupInterval:  5 * time.Minute,
	}
}

// DocumentCache holds uploaded documents in memory for deferred schema
// inference. Entries expire after the TTL; Get purges expired entries it
// finds and a background sweeper started by Start removes the rest.
type DocumentCache struct {
	cfg    CacheConfig
	now    func() time.Time
	newKey func() string

	mu   sync.RWMutex
	docs map[string]*domain.CachedDocument

	lifecycle sync.Mutex
	running   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewDocumentCache creates a cache. A nil clock uses time.Now.
func NewDocumentCache(cfg CacheConfig, clock func() time.Time) *DocumentCache {
	defaults := DefaultCacheConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.MaxDocuments <= 0 {
		cfg.MaxDocuments = defaults.MaxDocuments
	}
	if cfg.MaxDocumentBytes <= 0 {
		cfg.MaxDocumentBytes = defaults.MaxDocumentBytes
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaults.CleanupInterval
	}
	if clock == nil {
		clock = time.Now
	}
	return &DocumentCache{
		cfg:    cfg,
		now:    clock,
		newKey: uuid.NewString,
		docs:   make(map[string]*domain.CachedDocument),
	}
}

// Start launches the background sweeper. Calling Start on a running cache
// does nothing. The sweeper stops when ctx is cancelled or Close is called.
func (c *DocumentCache) Start(ctx context.Context) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})

	c.wg.Add(1)
	go c.sweep(ctx, c.stopCh)
}

// Close stops the sweeper and waits for it to exit. It is safe to call
// more than once and on a cache that was never started.
func (c *DocumentCache) Close() error {
	c.lifecycle.Lock()
	if c.running {
		c.running = false
		close(c.stopCh)
	}
	c.lifecycle.Unlock()

	c.wg.Wait()
	return nil
}

func (c *DocumentCache) sweep(ctx context.Context, stop <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}

// Store adds a document and returns a copy of the new entry.
// At capacity the entry closest to expiry is evicted first.
func (c *DocumentCache) Store(content, filename string, llmConfig *domain.LLMConfig) (*domain.CachedDocument, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.NewValidationError("filename", "is required")
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.NewValidationError("file", "document contains no extractable text")
	}
	if len(content) > c.cfg.MaxDocumentBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte limit",
			domain.ErrDocumentTooLarge, len(content), c.cfg.MaxDocumentBytes)
	}

	now := c.now()
	doc := &domain.CachedDocument{
		Key:          c.newKey(),
		Filename:     filename,
		TextContent:  content,
		FileType:     domain.FileTypeOf(filename),
		SizeBytes:    len(content),
		TextStats:    domain.ComputeTextStats(content),
		LLMConfig:    llmConfig,
		CreatedAt:    now,
		ExpiresAt:    now.Add(c.cfg.TTL),
		LastAccessed: now,
	}

	c.mu.Lock()
	expired := c.purgeExpiredLocked(now)
	evicted := 0
	for len(c.docs) >= c.cfg.MaxDocuments {
		c.evictSoonestLocked()
		evicted++
	}
	c.docs[doc.Key] = doc
	size := len(c.docs)
	c.mu.Unlock()

	metrics.CachedDocuments.Set(float64(size))
	if expired > 0 || evicted > 0 {
		logger.Debug("Document cache: purged %d expired, evicted %d to make room", expired, evicted)
	}
	logger.Debug("Document cache: stored %s as %s (%d chars)", filename, doc.Key, doc.TextStats.TotalChars)

	out := *doc
	return &out, nil
}

// Get returns a copy of a live entry and refreshes its last access time.
// An expired entry is removed and reported as a miss.
func (c *DocumentCache) Get(key string) (*domain.CachedDocument, bool) {
	now := c.now()

	c.mu.Lock()
	doc, ok := c.docs[key]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	if doc.IsExpired(now) {
		delete(c.docs, key)
		size := len(c.docs)
		c.mu.Unlock()

		metrics.CacheEvictions.WithLabelValues("expired").Inc()
		metrics.CachedDocuments.Set(float64(size))
		return nil, false
	}
	if now.After(doc.LastAccessed) {
		doc.LastAccessed = now
	}
	out := *doc
	c.mu.Unlock()

	return &out, true
}

// Remove deletes an entry and reports whether it was present.
func (c *DocumentCache) Remove(key string) bool {
	c.mu.Lock()
	_, ok := c.docs[key]
	delete(c.docs, key)
	size := len(c.docs)
	c.mu.Unlock()

	if ok {
		metrics.CacheEvictions.WithLabelValues("removed").Inc()
		metrics.CachedDocuments.Set(float64(size))
	}
	return ok
}

// List returns metadata of live entries, newest first.
func (c *DocumentCache) List() []domain.CachedDocumentInfo {
	now := c.now()

	c.mu.RLock()
	infos := make([]domain.CachedDocumentInfo, 0, len(c.docs))
	for _, doc := range c.docs {
		if doc.IsExpired(now) {
			continue
		}
		infos = append(infos, doc.Info())
	}
	c.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].Key < infos[j].Key
		}
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos
}

// Cleanup removes expired entries and returns how many were removed.
func (c *DocumentCache) Cleanup() int {
	c.mu.Lock()
	n := c.purgeExpiredLocked(c.now())
	size := len(c.docs)
	c.mu.Unlock()

	metrics.CachedDocuments.Set(float64(size))
	if n > 0 {
		logger.Info("Document cache: removed %d expired document(s)", n)
	}
	return n
}

// Clear removes every entry and returns how many were removed.
func (c *DocumentCache) Clear() int {
	c.mu.Lock()
	n := len(c.docs)
	c.docs = make(map[string]*domain.CachedDocument)
	c.mu.Unlock()

	metrics.CacheEvictions.WithLabelValues("cleared").Add(float64(n))
	metrics.CachedDocuments.Set(0)
	return n
}

// Stats describes the cache.
func (c *DocumentCache) Stats() domain.CacheStats {
	c.mu.RLock()
	var textBytes, fileBytes int
	for _, doc := range c.docs {
		textBytes += len(doc.TextContent) + len(doc.Filename)
		fileBytes += doc.SizeBytes
	}
	total := len(c.docs)
	c.mu.RUnlock()

	return domain.CacheStats{
		TotalDocuments:         total,
		MaxDocuments:           c.cfg.MaxDocuments,
		MemoryUsageMB:          roundMB(textBytes),
		TotalFileSizeMB:        roundMB(fileBytes),
		TTLMinutes:             int(c.cfg.TTL / time.Minute),
		CleanupIntervalMinutes: int(c.cfg.CleanupInterval / time.Minute),
	}
}

// purgeExpiredLocked removes expired entries. c.mu must be held for writing.
func (c *DocumentCache) purgeExpiredLocked(now time.Time) int {
	n := 0
	for key, doc := range c.docs {
		if doc.IsExpired(now) {
			delete(c.docs, key)
			n++
		}
	}
	if n > 0 {
		metrics.CacheEvictions.WithLabelValues("expired").Add(float64(n))
	}
	return n
}

// evictSoonestLocked removes the entry with the earliest expiry.
// c.mu must be held for writing.
func (c *DocumentCache) evictSoonestLocked() {
	var victim *domain.CachedDocument
	for _, doc := range c.docs {
		if victim == nil || doc.ExpiresAt.Before(victim.ExpiresAt) ||
			(doc.ExpiresAt.Equal(victim.ExpiresAt) && doc.Key < victim.Key) {
			victim = doc
		}
	}
	if victim != nil {
		delete(c.docs, victim.Key)
		metrics.CacheEvictions.WithLabelValues("capacity").Inc()
	}
}

func roundMB(n int) float64 {
	return float64(n*100/bytesPerMB) / 100
}
