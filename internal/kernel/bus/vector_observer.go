package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/empirica/kernel/internal/models"
	"github.com/empirica/kernel/internal/vectorstore"
	"github.com/rs/zerolog"
)

// eventCollection is the fixed Qdrant/vectorstore collection name events are
// embedded into (spec.md §4.6).
const eventCollection = "epistemic_events"

const eventVectorSize = 1536

// VectorObserver is the bus's optional, best-effort semantic-search
// observer (spec.md §4.6, grounded on bus_persistence.py's
// QdrantBusObserver). It degrades to a silent no-op whenever the backend
// is a vectorstore.Noop or any call fails.
type VectorObserver struct {
	store    vectorstore.Store
	embedder vectorstore.Embedder
	log      zerolog.Logger
	ready    bool
}

// NewVectorObserver wires a VectorObserver. EnsureCollection is attempted
// once eagerly; failure just leaves the observer permanently best-effort
// (ready=false), matching _check_available's gating in bus_persistence.py.
func NewVectorObserver(ctx context.Context, store vectorstore.Store, embedder vectorstore.Embedder, log zerolog.Logger) *VectorObserver {
	o := &VectorObserver{store: store, embedder: embedder, log: log}
	if err := store.EnsureCollection(ctx, eventCollection, eventVectorSize); err != nil {
		log.Debug().Err(err).Msg("vector observer: collection unavailable, running degraded")
		return o
	}
	o.ready = true
	return o
}

// HandleEvent embeds "{type}: {agent_id} {data[:500]}" and upserts into the
// events collection (spec.md §4.6's exact text template). Any failure is
// logged and swallowed.
func (o *VectorObserver) HandleEvent(ctx context.Context, event *models.EpistemicEvent) {
	if !o.ready {
		return
	}
	text := summarize(event)
	vec, err := o.embedder.Embed(ctx, text)
	if err != nil || len(vec) == 0 {
		return
	}
	payload := map[string]any{
		"event_type": string(event.Type),
		"session_id": event.SessionID,
		"data":       event.Data,
		"timestamp":  event.Timestamp.Unix(),
	}
	point := vectorstore.Point{ID: event.ID, Vector: vec, Payload: payload}
	if err := o.store.Upsert(ctx, eventCollection, []vectorstore.Point{point}); err != nil {
		o.log.Debug().Err(err).Msg("vector observer: upsert failed, continuing degraded")
	}
}

// QuerySemantic runs a similarity search over embedded events, optionally
// restricted to one event type. Returns empty results, not an error, when
// the backend is unavailable.
func (o *VectorObserver) QuerySemantic(ctx context.Context, queryText string, limit int, eventType models.EventType) ([]vectorstore.ScoredPoint, error) {
	if !o.ready {
		return nil, nil
	}
	vec, err := o.embedder.Embed(ctx, queryText)
	if err != nil || len(vec) == 0 {
		return nil, nil
	}
	var filter *vectorstore.Filter
	if eventType != "" {
		filter = &vectorstore.Filter{Must: map[string]string{"event_type": string(eventType)}}
	}
	return o.store.Query(ctx, eventCollection, vec, filter, limit)
}

func summarize(event *models.EpistemicEvent) string {
	var dataStr string
	if event.Data != nil {
		dataStr = fmt.Sprintf("%v", event.Data)
	}
	if len(dataStr) > 500 {
		dataStr = dataStr[:500]
	}
	var agentID string
	if v, ok := event.Data["agent_id"]; ok {
		agentID = fmt.Sprintf("%v", v)
	}
	return strings.TrimSpace(fmt.Sprintf("%s: %s %s", event.Type, agentID, dataStr))
}
