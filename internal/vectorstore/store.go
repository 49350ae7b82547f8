// Package vectorstore defines the pluggable vector-backend capability used
// by the Epistemic Event Bus's optional semantic observer (spec.md §6.4).
// The Rollup Gate does not use it; its dedup is hash and Jaccard only.
// Every call may fail; callers must degrade gracefully rather than treat
// the backend as required.
package vectorstore

import "context"

// Point is one vector + payload to upsert into a collection.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is one result from a similarity query.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Filter restricts a query to points whose payload matches all conditions.
// A nil Filter means unrestricted.
type Filter struct {
	Must map[string]string
}

// Store is the minimal vector-backend capability spec.md §6.4 requires:
// create-if-absent collections, upsert, and similarity query.
type Store interface {
	EnsureCollection(ctx context.Context, name string, vectorSize uint64) error
	Upsert(ctx context.Context, collection string, points []Point) error
	Query(ctx context.Context, collection string, vector []float32, filter *Filter, limit int) ([]ScoredPoint, error)
}

// Embedder turns text into a vector for a Store query or upsert. Kept
// separate from Store because the embedding provider and the vector
// database are independently configurable (spec.md §6.4).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
