package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/fitstack/coach/internal/identity"
)

// LongTermStore holds durable memories searchable by vector
// similarity. Search results are scoped to a single user hash,
// ordered by descending score, and never include scores below
// minScore.
type LongTermStore interface {
	Add(ctx context.Context, rec Record) error
	Search(ctx context.Context, user identity.UserHash, vector []float32, topK int, minScore float32) ([]Result, error)
	DeleteUser(ctx context.Context, user identity.UserHash) error
}

const userHashField = "user_hash"

// QdrantStore keeps long-term memories in a single Qdrant collection
// using cosine distance, with the user hash as a payload field every
// query filters on.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

func NewQdrantStore(ctx context.Context, cfg *qdrant.Config, collection string, dims uint64, logger *slog.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("check collection %q: %w", collection, err)
	}
	if !exists {
		err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     dims,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("create collection %q: %w", collection, err)
		}
		logger.Info("created qdrant collection", "collection", collection, "dims", dims)
	}

	return &QdrantStore{
		client:     client,
		collection: collection,
		logger:     logger.With("component", "memory.longterm"),
	}, nil
}

func (s *QdrantStore) Close() error { return s.client.Close() }

func (s *QdrantStore) Add(ctx context.Context, rec Record) error {
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(rec.ID),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				userHashField: string(rec.UserHash),
				"text":        rec.Text,
				"created_at":  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
			}),
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, user identity.UserHash, vector []float32, topK int, minScore float32) ([]Result, error) {
	limit := uint64(topK)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(userHashField, string(user)),
			},
		},
		Limit:          &limit,
		ScoreThreshold: &minScore,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrUnavailable, err)
	}

	results := make([]Result, 0, len(points))
	for _, p := range points {
		rec := Record{
			UserHash: user,
			Text:     p.Payload["text"].GetStringValue(),
		}
		if id := p.Id.GetUuid(); id != "" {
			rec.ID = id
		}
		if raw := p.Payload["created_at"].GetStringValue(); raw != "" {
			if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				rec.CreatedAt = ts
			}
		}
		results = append(results, Result{Record: rec, Score: p.Score})
	}
	return results, nil
}

func (s *QdrantStore) DeleteUser(ctx context.Context, user identity.UserHash) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(userHashField, string(user)),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: delete: %v", ErrUnavailable, err)
	}
	return nil
}
