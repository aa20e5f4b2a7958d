// Package qdrant provides a long-term store backed by a Qdrant server over
// gRPC. One collection holds all users; every point carries a user_id
// payload field and every query filters on it.
package qdrant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/recallhq/recall-service/internal/config"
	"github.com/recallhq/recall-service/internal/model"
	registrylongterm "github.com/recallhq/recall-service/internal/registry/longterm"
	registrymigrate "github.com/recallhq/recall-service/internal/registry/migrate"
)

// qdrantMigrator creates the collection at startup when it does not exist.
type qdrantMigrator struct{}

func (m *qdrantMigrator) Name() string { return "qdrant" }
func (m *qdrantMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.LongTermType != "qdrant" || !cfg.LongTermMigrateAtStart {
		return nil
	}

	log.Info("Running migration", "name", m.Name())
	migrateCtx, cancel := context.WithTimeout(ctx, cfg.QdrantStartupTimeout)
	defer cancel()

	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("qdrant migrate: connect: %w", err)
	}
	defer conn.Close()

	client := pb.NewCollectionsClient(conn)
	_, err = client.Get(migrateCtx, &pb.GetCollectionInfoRequest{CollectionName: cfg.QdrantCollectionName})
	if err == nil {
		return nil // collection exists
	}

	_, err = client.Create(migrateCtx, &pb.CreateCollection{
		CollectionName: cfg.QdrantCollectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     embeddingDimension(cfg),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant migrate: create collection: %w", err)
	}
	log.Info("Created Qdrant collection", "name", cfg.QdrantCollectionName)
	return nil
}

func init() {
	registrylongterm.Register(registrylongterm.Plugin{
		Name:   "qdrant",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &qdrantMigrator{}})
}

func load(ctx context.Context) (registrylongterm.Store, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("qdrant: missing config in context")
	}
	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect: %w", err)
	}
	return &Store{
		points:         pb.NewPointsClient(conn),
		conn:           conn,
		collectionName: cfg.QdrantCollectionName,
		dimension:      int(embeddingDimension(cfg)),
	}, nil
}

type Store struct {
	points         pb.PointsClient
	conn           *grpc.ClientConn
	collectionName string
	dimension      int

	// accessMu serializes counter updates; Qdrant has no server-side
	// increment, so IncrAccess is a guarded read-modify-write.
	accessMu sync.Mutex
}

func (s *Store) Name() string { return "qdrant" }

func userFilter(userID string) *pb.Filter {
	return &pb.Filter{
		Must: []*pb.Condition{
			{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key: "user_id",
						Match: &pb.Match{
							MatchValue: &pb.Match_Keyword{Keyword: userID},
						},
					},
				},
			},
		},
	}
}

func (s *Store) Upsert(ctx context.Context, rec model.MemoryRecord) error {
	vector := rec.Embedding
	if len(vector) == 0 {
		// Points need a vector; records saved while the embedding provider
		// was down get a zero vector and surface through List only.
		vector = make([]float32, s.dimension)
	}
	payload := map[string]*pb.Value{
		"user_id":      {Kind: &pb.Value_StringValue{StringValue: rec.UserID}},
		"content":      {Kind: &pb.Value_StringValue{StringValue: rec.Content}},
		"source":       {Kind: &pb.Value_StringValue{StringValue: string(rec.Source)}},
		"created_at":   {Kind: &pb.Value_StringValue{StringValue: rec.CreatedAt.Format(time.RFC3339Nano)}},
		"access_count": {Kind: &pb.Value_IntegerValue{IntegerValue: rec.AccessCount}},
		"has_vector":   {Kind: &pb.Value_BoolValue{BoolValue: len(rec.Embedding) > 0}},
	}
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collectionName,
		Points: []*pb.PointStruct{
			{
				Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: rec.ID.String()}},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{
						Vector: &pb.Vector{Data: vector},
					},
				},
				Payload: payload,
			},
		},
	})
	return err
}

// IncrAccess counts accesses within one process; concurrent writers on
// other instances are last-write-wins, which can only undercount, never
// change a record's tier.
func (s *Store) IncrAccess(ctx context.Context, userID string, id uuid.UUID) (int64, error) {
	s.accessMu.Lock()
	defer s.accessMu.Unlock()

	pointID := &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id.String()}}
	resp, err := s.points.Get(ctx, &pb.GetPoints{
		CollectionName: s.collectionName,
		Ids:            []*pb.PointId{pointID},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return 0, err
	}
	var count int64
	found := false
	for _, pt := range resp.GetResult() {
		if pt.GetPayload()["user_id"].GetStringValue() == userID {
			count = pt.GetPayload()["access_count"].GetIntegerValue()
			found = true
		}
	}
	if !found {
		return 0, nil
	}

	count++
	_, err = s.points.SetPayload(ctx, &pb.SetPayloadPoints{
		CollectionName: s.collectionName,
		Payload: map[string]*pb.Value{
			"access_count": {Kind: &pb.Value_IntegerValue{IntegerValue: count}},
		},
		PointsSelector: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: []*pb.PointId{pointID}},
			},
		},
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) Search(ctx context.Context, userID string, embedding []float32, limit int) ([]registrylongterm.SearchResult, error) {
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collectionName,
		Vector:         embedding,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter:         userFilter(userID),
	})
	if err != nil {
		return nil, err
	}

	var results []registrylongterm.SearchResult
	for _, pt := range resp.GetResult() {
		rec, ok := recordFromPayload(pt.GetId(), pt.GetPayload())
		if !ok {
			continue
		}
		results = append(results, registrylongterm.SearchResult{
			Record: rec,
			Score:  float64(pt.GetScore()),
		})
	}
	return results, nil
}

func (s *Store) List(ctx context.Context, userID string) ([]model.MemoryRecord, error) {
	var out []model.MemoryRecord
	var offset *pb.PointId
	for {
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collectionName,
			Filter:         userFilter(userID),
			Limit:          newUint32(200),
			Offset:         offset,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, err
		}
		for _, pt := range resp.GetResult() {
			if rec, ok := recordFromPayload(pt.GetId(), pt.GetPayload()); ok {
				out = append(out, rec)
			}
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, userID string, id uuid.UUID) (bool, error) {
	// Ownership check first: point IDs are global to the collection.
	resp, err := s.points.Get(ctx, &pb.GetPoints{
		CollectionName: s.collectionName,
		Ids:            []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: id.String()}}},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return false, err
	}
	found := false
	for _, pt := range resp.GetResult() {
		if pt.GetPayload()["user_id"].GetStringValue() == userID {
			found = true
		}
	}
	if !found {
		return false, nil
	}

	_, err = s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collectionName,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: id.String()}}},
				},
			},
		},
	})
	return err == nil, err
}

func (s *Store) DeleteAll(ctx context.Context, userID string) (int, error) {
	countResp, err := s.points.Count(ctx, &pb.CountPoints{
		CollectionName: s.collectionName,
		Filter:         userFilter(userID),
		Exact:          newBool(true),
	})
	if err != nil {
		return 0, err
	}
	n := int(countResp.GetResult().GetCount())
	if n == 0 {
		return 0, nil
	}

	_, err = s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collectionName,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: userFilter(userID)},
		},
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func recordFromPayload(id *pb.PointId, payload map[string]*pb.Value) (model.MemoryRecord, bool) {
	recID, err := uuid.Parse(id.GetUuid())
	if err != nil {
		return model.MemoryRecord{}, false
	}
	createdAt, err := time.Parse(time.RFC3339Nano, payload["created_at"].GetStringValue())
	if err != nil {
		log.Error("qdrant: bad created_at payload", "id", recID, "err", err)
		createdAt = time.Time{}
	}
	return model.MemoryRecord{
		ID:          recID,
		UserID:      payload["user_id"].GetStringValue(),
		Content:     payload["content"].GetStringValue(),
		Source:      model.Source(payload["source"].GetStringValue()),
		CreatedAt:   createdAt,
		AccessCount: payload["access_count"].GetIntegerValue(),
		Tier:        model.TierLongTerm,
	}, true
}

func newUint32(v uint32) *uint32 { return &v }
func newBool(v bool) *bool       { return &v }

func dialOptions(cfg *config.Config) []grpc.DialOption {
	opts := make([]grpc.DialOption, 0, 2)
	if cfg.QdrantUseTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if strings.TrimSpace(cfg.QdrantAPIKey) != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCredentials{
			apiKey:     cfg.QdrantAPIKey,
			requireTLS: cfg.QdrantUseTLS,
		}))
	}
	return opts
}

type apiKeyCredentials struct {
	apiKey     string
	requireTLS bool
}

func (a apiKeyCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"api-key": a.apiKey}, nil
}

func (a apiKeyCredentials) RequireTransportSecurity() bool {
	return a.requireTLS
}

func embeddingDimension(cfg *config.Config) uint64 {
	if cfg != nil && cfg.OpenAIDimensions > 0 {
		return uint64(cfg.OpenAIDimensions)
	}
	return 1536
}

var _ registrylongterm.Store = (*Store)(nil)
