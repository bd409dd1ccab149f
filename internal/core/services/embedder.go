package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
	"github.com/custodia-labs/docrag/internal/logger"
	"github.com/custodia-labs/docrag/internal/metrics"
)

// FallbackEmbeddingPolicy decides what happens when a provider call fails
// after retries.
type FallbackEmbeddingPolicy interface {
	// Name identifies the policy in logs and config.
	Name() string

	// Substitute returns n replacement vectors of width dims, or an error
	// to fail the batch.
	Substitute(provider domain.AIProvider, n, dims int, cause error) ([][]float32, error)
}

// StrictPolicy surfaces every embedding failure.
type StrictPolicy struct{}

// Name implements FallbackEmbeddingPolicy.
func (StrictPolicy) Name() string { return "none" }

// Substitute implements FallbackEmbeddingPolicy.
func (StrictPolicy) Substitute(_ domain.AIProvider, _, _ int, cause error) ([][]float32, error) {
	return nil, cause
}

// ZeroVectorPolicy replaces failed embeddings with zero vectors.
// For development setups without a reachable provider only.
type ZeroVectorPolicy struct {
	// Dimensions overrides the vector width. Zero uses the target width.
	Dimensions int
}

// Name implements FallbackEmbeddingPolicy.
func (ZeroVectorPolicy) Name() string { return "zero" }

// Substitute implements FallbackEmbeddingPolicy.
func (p ZeroVectorPolicy) Substitute(provider domain.AIProvider, n, dims int, cause error) ([][]float32, error) {
	if p.Dimensions > 0 {
		dims = p.Dimensions
	}
	logger.Warn("embedding fallback: substituting %d zero vector(s) of width %d for provider %s: %v",
		n, dims, provider, cause)
	metrics.EmbeddingFallbacks.WithLabelValues(string(provider)).Add(float64(n))

	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dims)
	}
	return out, nil
}

// FallbackPolicyFor maps a config value onto a policy.
func FallbackPolicyFor(name string, dims int) (FallbackEmbeddingPolicy, error) {
	switch name {
	case "", "none":
		return StrictPolicy{}, nil
	case "zero":
		return ZeroVectorPolicy{Dimensions: dims}, nil
	default:
		return nil, domain.NewValidationError("embedding.fallback", "must be none or zero")
	}
}

// EmbedderConfig tunes the Embedder.
type EmbedderConfig struct {
	// Retry bounds provider calls.
	Retry RetryPolicy

	// TargetDimensions is the width every vector must have.
	// Zero uses the provider's own Dimensions().
	TargetDimensions int

	// Fallback handles failed batches. Nil means StrictPolicy.
	Fallback FallbackEmbeddingPolicy

	// Cache stores vectors by content hash. Optional.
	Cache driven.EmbeddingCache
}

// Embedder turns text into vectors through a resolved provider.
type Embedder struct {
	registry *ProviderRegistry
	cfg      EmbedderConfig
}

// NewEmbedder creates an embedder.
func NewEmbedder(registry *ProviderRegistry, cfg EmbedderConfig) *Embedder {
	if cfg.Fallback == nil {
		cfg.Fallback = StrictPolicy{}
	}
	return &Embedder{registry: registry, cfg: cfg}
}

// Resolve returns the embedding client for an override, or the default.
func (e *Embedder) Resolve(override *domain.ProviderOverride) (*EmbeddingClient, error) {
	return e.registry.ResolveEmbeddingDynamic(override)
}

// Dimensions returns the width vectors from client must have.
func (e *Embedder) Dimensions(client *EmbeddingClient) int {
	if e.cfg.TargetDimensions > 0 {
		return e.cfg.TargetDimensions
	}
	return client.Dimensions()
}

// EmbedOne embeds a single text.
func (e *Embedder) EmbedOne(ctx context.Context, client *EmbeddingClient, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, client, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedQuery embeds a search question. The fallback policy never applies:
// a failed call is returned so the caller can search another way.
func (e *Embedder) EmbedQuery(ctx context.Context, client *EmbeddingClient, question string) ([]float32, error) {
	vecs, err := e.embed(ctx, client, []string{question}, StrictPolicy{})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one provider call and returns one vector per
// text in input order. Cached texts are not sent.
func (e *Embedder) EmbedBatch(ctx context.Context, client *EmbeddingClient, texts []string) ([][]float32, error) {
	return e.embed(ctx, client, texts, e.cfg.Fallback)
}

func (e *Embedder) embed(
	ctx context.Context,
	client *EmbeddingClient,
	texts []string,
	fallback FallbackEmbeddingPolicy,
) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	dims := e.Dimensions(client)
	out := make([][]float32, len(texts))
	missing, keys := e.fromCache(ctx, client, dims, texts, out)

	if len(missing) > 0 {
		batch := make([]string, len(missing))
		for i, idx := range missing {
			batch[i] = texts[idx]
		}

		vecs, err := e.callProvider(ctx, client, batch)
		if err != nil {
			var mismatch *domain.DimensionMismatchError
			if errors.As(err, &mismatch) {
				return nil, err
			}
			vecs, err = fallback.Substitute(client.Provider, len(batch), dims, err)
			if err != nil {
				return nil, err
			}
			keys = nil // never cache substitutes
		}

		for i, idx := range missing {
			out[idx] = vecs[i]
			if keys != nil {
				e.cfg.Cache.Set(ctx, keys[idx], vecs[i])
			}
		}
	}

	for _, v := range out {
		if len(v) != dims {
			return nil, &domain.DimensionMismatchError{Expected: dims, Got: len(v)}
		}
	}
	return out, nil
}

func (e *Embedder) callProvider(ctx context.Context, client *EmbeddingClient, batch []string) ([][]float32, error) {
	var vecs [][]float32
	attempts, err := e.cfg.Retry.do(ctx, client.Provider, "embed", func(ctx context.Context) error {
		var err error
		vecs, err = client.EmbedBatch(ctx, batch)
		return err
	})
	if err != nil {
		return nil, &domain.ProviderError{Provider: client.Provider, Op: "embed", Attempts: attempts, Err: err}
	}
	if len(vecs) != len(batch) {
		return nil, &domain.ProviderError{
			Provider: client.Provider,
			Op:       "embed",
			Attempts: attempts,
			Err:      errors.New("provider returned a different number of vectors than inputs"),
		}
	}
	return vecs, nil
}

// fromCache fills out with cached vectors and returns the indexes still
// missing plus the cache key of every text (nil without a cache).
func (e *Embedder) fromCache(
	ctx context.Context,
	client *EmbeddingClient,
	dims int,
	texts []string,
	out [][]float32,
) ([]int, []string) {
	missing := make([]int, 0, len(texts))
	if e.cfg.Cache == nil {
		for i := range texts {
			missing = append(missing, i)
		}
		return missing, nil
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = embeddingCacheKey(client.ModelName(), dims, text)
		if v, ok := e.cfg.Cache.Get(ctx, keys[i]); ok {
			out[i] = v
			metrics.EmbeddingCacheHits.Inc()
			continue
		}
		metrics.EmbeddingCacheMisses.Inc()
		missing = append(missing, i)
	}
	return missing, keys
}

// embeddingCacheKey covers the vector width so a dimensions change never
// serves vectors of the old width.
func embeddingCacheKey(model string, dims int, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + strconv.Itoa(dims) + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
