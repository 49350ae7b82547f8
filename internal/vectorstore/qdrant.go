package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore adapts github.com/qdrant/go-client to the Store capability
// (spec.md §6.4, grounded on intelligencedev-manifold's qdrantVector
// adapter — same gRPC client, same deterministic-UUID-from-string-id
// trick since Qdrant point IDs must be UUIDs or positive integers).
type QdrantStore struct {
	client *qdrant.Client
}

// PayloadIDField stores the caller's original string ID inside the point
// payload when it isn't itself a UUID, mirroring the teacher pack's
// qdrant_vector.go convention.
const PayloadIDField = "_original_id"

// NewQdrantStore dials Qdrant's gRPC endpoint (default port 6334).
func NewQdrantStore(host string, port int, apiKey string, useTLS bool) (*QdrantStore, error) {
	config := &qdrant.Config{Host: host, Port: port, UseTLS: useTLS}
	if apiKey != "" {
		config.APIKey = apiKey
	}
	client, err := qdrant.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &QdrantStore{client: client}, nil
}

// Close releases the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func pointID(id string) (string, bool) {
	if _, err := uuid.Parse(id); err == nil {
		return id, false
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String(), true
}

// EnsureCollection creates the named collection if it does not already
// exist, using cosine distance (spec.md §6.4's CreateCollection).
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, vectorSize uint64) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// Upsert writes points into collection. A caller-supplied ID that is not a
// valid UUID is remapped to a deterministic UUID, with the original
// preserved in the payload under PayloadIDField.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		id, remapped := pointID(p.ID)
		payload := p.Payload
		if remapped {
			if payload == nil {
				payload = map[string]any{}
			}
			payload[PayloadIDField] = p.ID
		}
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         structs,
	})
	return err
}

// Query runs a nearest-neighbor search, optionally restricted by filter.
func (s *QdrantStore) Query(ctx context.Context, collection string, vector []float32, filter *Filter, limit int) ([]ScoredPoint, error) {
	if limit <= 0 {
		limit = 10
	}
	var qFilter *qdrant.Filter
	if filter != nil && len(filter.Must) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter.Must))
		for k, v := range filter.Must {
			must = append(must, qdrant.NewMatch(k, v))
		}
		qFilter = &qdrant.Filter{Must: must}
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	lim := uint64(limit)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &lim,
		Filter:         qFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	results := make([]ScoredPoint, 0, len(hits))
	for _, hit := range hits {
		payload := map[string]any{}
		id := hit.Id.GetUuid()
		if hit.Payload != nil {
			for k, v := range hit.Payload {
				if k == PayloadIDField {
					id = v.GetStringValue()
					continue
				}
				payload[k] = v.GetStringValue()
			}
		}
		results = append(results, ScoredPoint{
			ID:      id,
			Score:   float64(hit.Score),
			Payload: payload,
		})
	}
	return results, nil
}
