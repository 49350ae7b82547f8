package vectorstore

import "context"

// Noop is the zero-configuration Store used when no vector backend is
// configured. Every call is a graceful no-op, matching spec.md §4.6's
// "gracefully degrades to no-op when backend absent" requirement for the
// bus's optional vector observer.
type Noop struct{}

// NewNoop constructs a Noop store.
func NewNoop() *Noop { return &Noop{} }

func (Noop) EnsureCollection(ctx context.Context, name string, vectorSize uint64) error {
	return nil
}

func (Noop) Upsert(ctx context.Context, collection string, points []Point) error {
	return nil
}

func (Noop) Query(ctx context.Context, collection string, vector []float32, filter *Filter, limit int) ([]ScoredPoint, error) {
	return nil, nil
}

// NoopEmbedder is the zero-configuration Embedder used when no embedding
// capability is configured (spec.md §4.6/§6.4's external-capability
// Non-goal: LLM/embedding invocation is outside kernel scope).
type NoopEmbedder struct{}

// NewNoopEmbedder constructs a NoopEmbedder.
func NewNoopEmbedder() *NoopEmbedder { return &NoopEmbedder{} }

func (NoopEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}
