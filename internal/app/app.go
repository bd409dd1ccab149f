// Package app wires configuration into the running service graph.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/docrag/internal/adapters/driven/ai"
	"github.com/custodia-labs/docrag/internal/adapters/driven/config/file"
	memcache "github.com/custodia-labs/docrag/internal/adapters/driven/embedcache/memory"
	rediscache "github.com/custodia-labs/docrag/internal/adapters/driven/embedcache/redis"
	memstore "github.com/custodia-labs/docrag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docrag/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/docrag/internal/adapters/driven/vector/chromem"
	"github.com/custodia-labs/docrag/internal/adapters/driven/vector/qdrant"
	"github.com/custodia-labs/docrag/internal/config"
	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
	"github.com/custodia-labs/docrag/internal/core/ports/driving"
	"github.com/custodia-labs/docrag/internal/core/services"
	"github.com/custodia-labs/docrag/internal/logger"
	"github.com/custodia-labs/docrag/internal/normalisers"
	"github.com/custodia-labs/docrag/internal/postprocessors"
)

// App holds the driving ports built from one configuration.
type App struct {
	Config *config.Config

	Ingest     driving.IngestService
	Query      driving.QueryService
	Retrieval  driving.RetrievalService
	Generation driving.GenerationService
	Schema     driving.SchemaService
	Cache      driving.DocumentCache
	Providers  driving.ProviderRegistry
	Extractors driven.ExtractorRegistry
	Admin      driving.StoreAdmin

	cache   *services.DocumentCache
	prompts *file.PromptStore
	closers []io.Closer
}

// Build constructs every service. Nothing here contacts a provider; the
// store and vector backend are opened, and a failing store only disables
// persistence.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	prompts, err := file.NewPromptStore(cfg.Prompts.Dir)
	if err != nil {
		return nil, fmt.Errorf("prompt store: %w", err)
	}
	a.prompts = prompts

	registry := services.NewProviderRegistry(
		ai.NewFactory(),
		cfg,
		domain.AIProvider(cfg.Providers.Embedding),
		domain.AIProvider(cfg.Providers.Generation),
	)
	a.Providers = registry
	a.closers = append(a.closers, registry)

	limiter := newLimiter(cfg.Providers.RequestsPerSecond)
	retry := services.DefaultRetryPolicy()
	retry.MaxRetries = cfg.Providers.MaxRetries
	retry.AttemptTimeout = cfg.ProviderTimeout()
	retry.Limiter = limiter

	fallback, err := services.FallbackPolicyFor(cfg.Embedding.Fallback, cfg.Embedding.Dimensions)
	if err != nil {
		return nil, err
	}
	embedder := services.NewEmbedder(registry, services.EmbedderConfig{
		Retry:            retry,
		TargetDimensions: cfg.Embedding.Dimensions,
		Fallback:         fallback,
		Cache:            a.embeddingCache(ctx),
	})

	store, index, err := a.openStorage(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	schema := services.NewSchemaInferrer(registry, prompts, retry)
	a.Schema = schema

	chunker, err := postprocessors.NewDefaultPipeline(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("chunker: %w", err)
	}
	extractors := normalisers.NewDefaultRegistry()
	a.Extractors = extractors

	a.Ingest = services.NewIngestionPipeline(extractors, chunker, embedder, store, index, schema,
		services.IngestConfig{IndexName: cfg.Vector.IndexName})

	retrieval := services.NewRetrievalEngine(embedder, store, index,
		services.RetrievalConfig{DefaultTopK: cfg.Retrieval.TopK})
	a.Retrieval = retrieval
	a.Admin = services.NewAdminService(embedder, store, index, cfg.Vector.IndexName)

	genRetry := services.DefaultGenerationRetryPolicy()
	genRetry.MaxRetries = cfg.Generation.MaxRetries
	genRetry.AttemptTimeout = cfg.ProviderTimeout()
	genRetry.Limiter = limiter
	generation := services.NewGenerationService(registry, prompts, services.GenerationConfig{
		MaxContextChars: cfg.Generation.MaxContextChars,
		Retry:           genRetry,
		MaxTokens:       cfg.Generation.MaxTokens,
		Temperature:     cfg.Generation.Temperature,
	})
	a.Generation = generation
	a.Query = services.NewQueryService(registry, retrieval, generation)

	a.cache = services.NewDocumentCache(services.CacheConfig{
		TTL:              cfg.CacheTTL(),
		MaxDocuments:     cfg.Cache.MaxDocuments,
		MaxDocumentBytes: int(cfg.MaxDocumentBytes()),
		CleanupInterval:  cfg.CacheCleanupInterval(),
	}, nil)
	a.Cache = a.cache
	a.closers = append(a.closers, a.cache)

	return a, nil
}

// Start launches background work for long-running commands: the document
// cache sweeper and, when enabled, the prompt file watcher.
func (a *App) Start(ctx context.Context) {
	if a.cache != nil {
		a.cache.Start(ctx)
	}
	if a.prompts == nil || !a.Config.Prompts.Watch {
		return
	}
	if _, err := a.prompts.Watch(ctx); err != nil {
		logger.Warn("Prompt reload disabled: %v", err)
		return
	}
	logger.Debug("Watching prompts in %s", a.prompts.Dir())
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// embeddingCache picks the configured cache. An unreachable Redis falls
// back to the in-process cache.
func (a *App) embeddingCache(ctx context.Context) driven.EmbeddingCache {
	cfg := a.Config
	ttl := time.Duration(cfg.Embedding.CacheTTLMinutes) * time.Minute

	switch cfg.Embedding.Cache {
	case "none":
		return nil
	case "redis":
		c, err := rediscache.New(ctx, rediscache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      ttl,
		})
		if err == nil {
			a.closers = append(a.closers, c)
			logger.Debug("Embedding cache: redis at %s", cfg.Redis.Addr)
			return c
		}
		logger.Warn("Redis embedding cache unavailable, using memory: %v", err)
	}
	return memcache.New(cfg.Embedding.CacheSize, ttl)
}

// openStorage opens the chunk store and the configured vector backend.
// A store that fails to open is logged and ingestion runs degraded.
func (a *App) openStorage(cfg *config.Config) (driven.ChunkStore, driven.VectorIndex, error) {
	var (
		store driven.ChunkStore
		db    *sqlite.Store
	)
	switch {
	case !cfg.Store.Enabled:
	case cfg.Store.Backend == "memory":
		mem := memstore.NewStore()
		store = mem
		a.closers = append(a.closers, mem)
		logger.Debug("Chunk store in memory")
	default:
		var err error
		db, err = sqlite.NewStore(cfg.Store.DataDir)
		if err != nil {
			logger.Warn("Chunk store unavailable, ingestion will not persist: %v", err)
		} else {
			store = db.ChunkStore()
			a.closers = append(a.closers, db)
			logger.Debug("Chunk store at %s", db.Path())
		}
	}

	switch cfg.Vector.Backend {
	case "memory":
		return store, memstore.NewVectorIndex(cfg.Vector.IndexName), nil

	case "qdrant":
		idx, err := qdrant.NewIndex(qdrant.Config{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Vector.IndexName,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("qdrant: %w", err)
		}
		a.closers = append(a.closers, idx)
		return store, idx, nil

	case "chromem":
		idx, err := chromem.NewIndex(chromem.Config{
			Path:       cfg.Chromem.Path,
			Compress:   true,
			Collection: cfg.Vector.IndexName,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("chromem: %w", err)
		}
		a.closers = append(a.closers, idx)
		return store, idx, nil

	default:
		if db == nil {
			return store, nil, nil
		}
		return store, db.VectorIndex(cfg.Vector.IndexName), nil
	}
}

// newLimiter paces provider calls, or returns nil when unlimited.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), int(math.Max(1, math.Ceil(rps))))
}
