// Package qdrant provides a VectorIndex backed by a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Default connection values.
const (
	DefaultHost = "localhost"
	DefaultPort = 6334
)

// Payload keys written with every point.
const (
	payloadChunkID    = "chunk_id"
	payloadDocumentID = "document_id"
	payloadPosition   = "position"
)

// Config holds configuration for the Qdrant index.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool

	// Collection is the collection name the index is bound to.
	Collection string
}

// pointsClient is the subset of *qdrant.Client the index uses.
type pointsClient interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	GetCollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error)
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	DeleteCollection(ctx context.Context, name string) error
	Close() error
}

// Index stores chunk vectors as Qdrant points.
// Point IDs are UUIDv5 values derived from chunk IDs, so re-ingesting a
// document overwrites its points instead of duplicating them.
type Index struct {
	client     pointsClient
	collection string
}

// NewIndex connects to Qdrant.
func NewIndex(cfg Config) (*Index, error) {
	if cfg.Collection == "" {
		return nil, domain.NewValidationError("collection", "is required")
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to qdrant at %s:%d: %w",
			domain.ErrVectorIndexUnavailable, cfg.Host, cfg.Port, err)
	}
	return newIndex(client, cfg.Collection), nil
}

func newIndex(client pointsClient, collection string) *Index {
	return &Index{client: client, collection: collection}
}

// EnsureIndex creates the collection when missing.
func (i *Index) EnsureIndex(ctx context.Context, spec driven.IndexSpec) (bool, error) {
	if spec.Dimensions <= 0 {
		return false, domain.NewValidationError("dimensions", "must be positive")
	}
	if spec.Name != "" && spec.Name != i.collection {
		return false, fmt.Errorf("%w: index %q is bound to %q", domain.ErrInvalidInput, spec.Name, i.collection)
	}

	existing, err := i.Describe(ctx)
	if err != nil {
		return false, err
	}
	if existing != nil {
		if existing.Dimensions != spec.Dimensions {
			return false, &domain.DimensionMismatchError{Expected: existing.Dimensions, Got: spec.Dimensions}
		}
		return false, nil
	}

	err = i.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: i.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(spec.Dimensions),
					Distance: distanceFor(spec.Similarity),
				},
			},
		},
	})
	if err == nil {
		return true, nil
	}
	if status.Code(err) != codes.AlreadyExists && !strings.Contains(err.Error(), "already exists") {
		return false, classify("creating collection", err)
	}

	// Lost a creation race; the winner's width still has to match.
	existing, err = i.Describe(ctx)
	if err != nil {
		return false, err
	}
	if existing != nil && existing.Dimensions != spec.Dimensions {
		return false, &domain.DimensionMismatchError{Expected: existing.Dimensions, Got: spec.Dimensions}
	}
	return false, nil
}

// Describe reads the collection's vector parameters.
func (i *Index) Describe(ctx context.Context) (*driven.IndexSpec, error) {
	exists, err := i.client.CollectionExists(ctx, i.collection)
	if err != nil {
		return nil, classify("checking collection", err)
	}
	if !exists {
		return nil, nil
	}

	info, err := i.client.GetCollectionInfo(ctx, i.collection)
	if err != nil {
		return nil, classify("reading collection info", err)
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return nil, fmt.Errorf("collection %s has no single unnamed vector", i.collection)
	}
	return &driven.IndexSpec{
		Name:       i.collection,
		Dimensions: int(params.GetSize()),
		Similarity: similarityFor(params.GetDistance()),
	}, nil
}

// Upsert writes one point per chunk.
func (i *Index) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for n, c := range chunks {
		if len(c.Embedding) == 0 {
			return domain.NewValidationError("embedding", fmt.Sprintf("chunk %s has no vector", c.ID))
		}
		points[n] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(c.ID)),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadChunkID:    c.ID,
				payloadDocumentID: c.DocumentID,
				payloadPosition:   int64(c.Index),
			}),
		}
	}

	wait := true
	if _, err := i.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return classify("upserting points", err)
	}
	return nil
}

// Search runs a nearest-neighbour query against the collection.
func (i *Index) Search(ctx context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if k <= 0 {
		return []driven.VectorHit{}, nil
	}

	limit := uint64(k)
	resp, err := i.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return []driven.VectorHit{}, nil
		}
		return nil, classify("querying points", err)
	}

	hits := make([]driven.VectorHit, 0, len(resp))
	for _, p := range resp {
		chunkID := p.GetPayload()[payloadChunkID].GetStringValue()
		if chunkID == "" {
			continue
		}
		hits = append(hits, driven.VectorHit{ChunkID: chunkID, Similarity: float64(p.GetScore())})
	}
	return hits, nil
}

// Delete removes the points of the given chunks.
func (i *Index) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	ids := make([]*qdrant.PointId, len(chunkIDs))
	for n, id := range chunkIDs {
		ids[n] = qdrant.NewIDUUID(PointID(id))
	}

	wait := true
	if _, err := i.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelectorIDs(ids),
	}); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return classify("deleting points", err)
	}
	return nil
}

// Drop deletes the collection.
func (i *Index) Drop(ctx context.Context) error {
	if err := i.client.DeleteCollection(ctx, i.collection); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return classify("deleting collection", err)
	}
	return nil
}

// Close closes the gRPC connection.
func (i *Index) Close() error {
	return i.client.Close()
}

// PointID maps a chunk ID onto the UUID Qdrant requires for point IDs.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func distanceFor(similarity string) qdrant.Distance {
	switch strings.ToLower(similarity) {
	case "dot":
		return qdrant.Distance_Dot
	case "euclid", "euclidean":
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

func similarityFor(d qdrant.Distance) string {
	switch d {
	case qdrant.Distance_Dot:
		return "dot"
	case qdrant.Distance_Euclid:
		return "euclid"
	default:
		return "cosine"
	}
}

// classify marks connection-level gRPC failures as index unavailability.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%w: %s: %w", domain.ErrVectorIndexUnavailable, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", domain.ErrVectorIndexUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
