// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Provider metrics
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docrag_provider_requests_total",
			Help: "Upstream provider requests by outcome",
		},
		[]string{"provider", "op", "status"},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docrag_provider_request_duration_seconds",
			Help:    "Upstream provider request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "op"},
	)

	ProviderRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docrag_provider_retries_total",
			Help: "Retried upstream provider calls",
		},
		[]string{"provider", "op"},
	)

	// Embedding metrics
	EmbeddingFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docrag_embedding_fallback_vectors_total",
			Help: "Zero vectors substituted for failed embeddings",
		},
		[]string{"provider"},
	)

	EmbeddingCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docrag_embedding_cache_hits_total",
			Help: "Embedding cache hits",
		},
	)

	EmbeddingCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docrag_embedding_cache_misses_total",
			Help: "Embedding cache misses",
		},
	)

	// Ingestion metrics
	IngestionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docrag_ingestions_total",
			Help: "Ingestions by terminal state",
		},
		[]string{"state"},
	)

	ChunksIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docrag_chunks_ingested_total",
			Help: "Chunks produced by ingestion",
		},
	)

	// Retrieval metrics
	RetrievalsByMethod = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docrag_retrievals_total",
			Help: "Retrievals by the path that produced the result",
		},
		[]string{"method"},
	)

	// Cache metrics
	CachedDocuments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docrag_cached_documents",
			Help: "Documents currently staged in the document cache",
		},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docrag_cache_evictions_total",
			Help: "Document cache removals by reason",
		},
		[]string{"reason"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docrag_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docrag_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)
