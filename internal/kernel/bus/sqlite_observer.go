package bus

import (
	"context"

	"github.com/empirica/kernel/internal/db"
	"github.com/empirica/kernel/internal/models"
	"github.com/rs/zerolog"
)

// SQLiteObserver is the bus's always-active, guaranteed-durable persistence
// observer (spec.md §4.6, grounded on bus_persistence.py's
// SqliteBusObserver._ensure_table/handle_event/query_events).
type SQLiteObserver struct {
	repo *db.EventRepository
	log  zerolog.Logger
}

// NewSQLiteObserver wires a SQLiteObserver against the session store.
func NewSQLiteObserver(repo *db.EventRepository, log zerolog.Logger) *SQLiteObserver {
	return &SQLiteObserver{repo: repo, log: log}
}

// HandleEvent persists event. Failures are logged, never propagated —
// SQLite persistence on the bus is best described as "guaranteed durable"
// by policy, but a single failed write must not crash the publishing flow.
func (o *SQLiteObserver) HandleEvent(ctx context.Context, event *models.EpistemicEvent) {
	if err := o.repo.Create(event); err != nil {
		o.log.Error().Err(err).Str("event_type", string(event.Type)).Str("session_id", event.SessionID).
			Msg("failed to persist epistemic event")
	}
}

// QueryEvents exposes cross-session event discovery (spec.md §4.6).
func (o *SQLiteObserver) QueryEvents(q models.EventQuery) ([]*models.EpistemicEvent, error) {
	return o.repo.Query(q)
}
