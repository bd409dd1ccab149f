// Package redis provides an embedding cache shared between docrag processes.
package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/docrag/internal/core/ports/driven"
	"github.com/custodia-labs/docrag/internal/logger"
)

// Ensure Cache implements the interface.
var _ driven.EmbeddingCache = (*Cache)(nil)

// Defaults.
const (
	DefaultTTL    = time.Hour
	DefaultPrefix = "docrag:emb:"
	pingTimeout   = 3 * time.Second
)

// Config holds configuration for the Redis cache.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// Cache stores vectors as little-endian float32 byte strings.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// New connects and pings once so a wrong address fails at startup.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return newCache(client, cfg), nil
}

func newCache(client *redis.Client, cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &Cache{client: client, ttl: cfg.TTL, prefix: cfg.Prefix}
}

// Get reports a miss on any failure.
func (c *Cache) Get(ctx context.Context, key string) ([]float32, bool) {
	b, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Debug("embedding cache get %s: %v", key, err)
		}
		return nil, false
	}
	vec, ok := decode(b)
	if !ok {
		logger.Debug("embedding cache: discarding malformed entry %s (%d bytes)", key, len(b))
		return nil, false
	}
	return vec, true
}

// Set is best effort.
func (c *Cache) Set(ctx context.Context, key string, vec []float32) {
	if err := c.client.Set(ctx, c.prefix+key, encode(vec), c.ttl).Err(); err != nil {
		logger.Debug("embedding cache set %s: %v", key, err)
	}
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.client.Close()
}

func encode(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

func decode(b []byte) ([]float32, bool) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, false
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, true
}
