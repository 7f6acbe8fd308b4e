// Package qdrant implements port.VectorIndex on a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"

	"github.com/google/uuid"
	qc "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"bookrag/config"
	"bookrag/internal/domain"
)

const (
	payloadText     = "text"
	payloadChunkID  = "chunk_id"
	payloadMetadata = "metadata"
)

// pointNamespace derives stable Qdrant point UUIDs from chunk IDs, which
// Qdrant would otherwise reject as point identifiers.
var pointNamespace = uuid.MustParse("6f1c2a52-3d0e-4b8e-9a55-0f6f0c1d2b7e")

// Index is a VectorIndex backed by one Qdrant collection.
type Index struct {
	conn        *grpc.ClientConn
	points      qc.PointsClient
	collections qc.CollectionsClient
	collection  string
	dimension   int
	apiKey      string
	logger      *zap.Logger
}

// Dial connects to Qdrant and makes sure the collection exists with the
// given dimension.
func Dial(ctx context.Context, cfg config.QdrantConfig, dimension int, logger *zap.Logger) (*Index, error) {
	creds := insecure.NewCredentials()
	if cfg.UseTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, domain.NewIndexError("qdrant dial", err)
	}

	var apiKey string
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}

	idx := New(qc.NewPointsClient(conn), qc.NewCollectionsClient(conn), cfg.Collection, dimension, apiKey, logger)
	idx.conn = conn

	if err := idx.EnsureCollection(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	logger.Info("connected to qdrant", zap.String("addr", addr), zap.String("collection", cfg.Collection))
	return idx, nil
}

// New builds an Index on existing gRPC clients.
func New(points qc.PointsClient, collections qc.CollectionsClient, collection string, dimension int, apiKey string, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		points:      points,
		collections: collections,
		collection:  collection,
		dimension:   dimension,
		apiKey:      apiKey,
		logger:      logger,
	}
}

func (i *Index) withAuth(ctx context.Context) context.Context {
	if i.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", i.apiKey)
}

// EnsureCollection creates the collection if missing. An existing
// collection with a different vector size is a fatal configuration error.
func (i *Index) EnsureCollection(ctx context.Context) error {
	ctx = i.withAuth(ctx)

	list, err := i.collections.List(ctx, &qc.ListCollectionsRequest{})
	if err != nil {
		return domain.NewIndexError("qdrant list collections", err)
	}

	for _, col := range list.GetCollections() {
		if col.GetName() != i.collection {
			continue
		}
		info, err := i.collections.Get(ctx, &qc.GetCollectionInfoRequest{CollectionName: i.collection})
		if err != nil {
			return domain.NewIndexError("qdrant collection info", err)
		}
		size := int(info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
		if size != i.dimension {
			return domain.DimensionMismatch("qdrant collection "+i.collection, i.dimension, size)
		}
		return nil
	}

	i.logger.Info("creating qdrant collection", zap.String("collection", i.collection), zap.Int("dimension", i.dimension))
	_, err = i.collections.Create(ctx, &qc.CreateCollection{
		CollectionName: i.collection,
		VectorsConfig: &qc.VectorsConfig{
			Config: &qc.VectorsConfig_Params{
				Params: &qc.VectorParams{
					Size:     uint64(i.dimension),
					Distance: qc.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return domain.NewIndexError("qdrant create collection", err)
	}
	return nil
}

func (i *Index) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	points := make([]*qc.PointStruct, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) != i.dimension {
			return domain.NewIndexError("qdrant upsert", domain.DimensionMismatch("qdrant upsert", i.dimension, len(e.Vector)))
		}
		points = append(points, &qc.PointStruct{
			Id: pointID(e.ID),
			Vectors: &qc.Vectors{
				VectorsOptions: &qc.Vectors_Vector{
					Vector: &qc.Vector{Data: e.Vector},
				},
			},
			Payload: toPayload(e),
		})
	}

	wait := true
	_, err := i.points.Upsert(i.withAuth(ctx), &qc.UpsertPoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return domain.NewIndexError("qdrant upsert", err)
	}
	return nil
}

func (i *Index) Search(ctx context.Context, query []float32, k int) ([]domain.IndexHit, error) {
	if len(query) != i.dimension {
		return nil, domain.NewIndexError("qdrant search", domain.DimensionMismatch("qdrant search", i.dimension, len(query)))
	}
	if k <= 0 {
		return nil, nil
	}

	resp, err := i.points.Search(i.withAuth(ctx), &qc.SearchPoints{
		CollectionName: i.collection,
		Vector:         query,
		Limit:          uint64(k),
		WithPayload: &qc.WithPayloadSelector{
			SelectorOptions: &qc.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, domain.NewIndexError("qdrant search", err)
	}

	hits := make([]domain.IndexHit, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		payload := point.GetPayload()
		id := payload[payloadChunkID].GetStringValue()
		if id == "" {
			id = point.GetId().GetUuid()
		}
		hits = append(hits, domain.IndexHit{
			ID:    id,
			Score: float64(point.GetScore()),
			Payload: domain.Payload{
				Text:     payload[payloadText].GetStringValue(),
				Metadata: fromStruct(payload[payloadMetadata].GetStructValue()),
			},
		})
	}
	return hits, nil
}

func (i *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qc.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, pointID(id))
	}

	wait := true
	_, err := i.points.Delete(i.withAuth(ctx), &qc.DeletePoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points: &qc.PointsSelector{
			PointsSelectorOneOf: &qc.PointsSelector_Points{
				Points: &qc.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return domain.NewIndexError("qdrant delete", err)
	}
	return nil
}

func (i *Index) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := i.points.Count(i.withAuth(ctx), &qc.CountPoints{
		CollectionName: i.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, domain.NewIndexError("qdrant count", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func (i *Index) Dimension() int {
	return i.dimension
}

func (i *Index) Close() error {
	if i.conn == nil {
		return nil
	}
	return i.conn.Close()
}

func pointID(chunkID string) *qc.PointId {
	return &qc.PointId{
		PointIdOptions: &qc.PointId_Uuid{
			Uuid: uuid.NewSHA1(pointNamespace, []byte(chunkID)).String(),
		},
	}
}

func toPayload(e domain.IndexEntry) map[string]*qc.Value {
	payload := map[string]*qc.Value{
		payloadText:    {Kind: &qc.Value_StringValue{StringValue: e.Payload.Text}},
		payloadChunkID: {Kind: &qc.Value_StringValue{StringValue: e.ID}},
	}
	if len(e.Payload.Metadata) > 0 {
		fields := make(map[string]*qc.Value, len(e.Payload.Metadata))
		for k, v := range e.Payload.Metadata {
			fields[k] = &qc.Value{Kind: &qc.Value_StringValue{StringValue: v}}
		}
		payload[payloadMetadata] = &qc.Value{
			Kind: &qc.Value_StructValue{StructValue: &qc.Struct{Fields: fields}},
		}
	}
	return payload
}

func fromStruct(s *qc.Struct) map[string]string {
	if s == nil || len(s.GetFields()) == 0 {
		return nil
	}
	out := make(map[string]string, len(s.GetFields()))
	for k, v := range s.GetFields() {
		out[k] = v.GetStringValue()
	}
	return out
}
