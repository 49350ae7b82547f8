package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/empirica/kernel/internal/models"
)

// eventRow is the sqlx scan target for epistemic_events; data_json is stored
// as a TEXT column and marshaled/unmarshaled at the repository boundary,
// matching the teacher's *_data JSON-blob-in-column convention.
type eventRow struct {
	ID        string `db:"id"`
	EventType string `db:"event_type"`
	SessionID string `db:"session_id"`
	CascadeID *string `db:"cascade_id"`
	Domain    *string `db:"domain"`
	DataJSON  *string `db:"data_json"`
	Timestamp float64 `db:"timestamp"`
}

// EventRepository persists the Epistemic Event Bus's SQLite observer writes
// (spec.md §4.6/§6.1).
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create durably persists one event. This is the "guaranteed durable" half
// of the bus's persistence contract.
func (r *EventRepository) Create(event *models.EpistemicEvent) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO epistemic_events (
			id, event_type, session_id, cascade_id, domain, data_json, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	var cascadeID *string
	if event.CascadeID != "" {
		cascadeID = &event.CascadeID
	}
	var domain *string
	if event.Domain != "" {
		domain = &event.Domain
	}
	dj := string(dataJSON)
	ts := float64(event.Timestamp.UnixMilli()) / 1000.0
	_, err = r.db.Exec(query,
		event.ID,
		string(event.Type),
		event.SessionID,
		cascadeID,
		domain,
		dj,
		ts,
	)
	return err
}

// Query implements EventQuery filtering for cross-session discovery
// (spec.md §4.6's QueryEvents).
func (r *EventRepository) Query(q models.EventQuery) ([]*models.EpistemicEvent, error) {
	sqlQuery := `SELECT id, event_type, session_id, cascade_id, domain, data_json, timestamp FROM epistemic_events WHERE 1=1`
	var args []interface{}

	if q.SessionID != "" {
		sqlQuery += " AND session_id = ?"
		args = append(args, q.SessionID)
	}
	if q.Type != "" {
		sqlQuery += " AND event_type = ?"
		args = append(args, string(q.Type))
	}
	if !q.Since.IsZero() {
		sqlQuery += " AND timestamp >= ?"
		args = append(args, float64(q.Since.UnixMilli())/1000.0)
	}
	sqlQuery += " ORDER BY timestamp DESC"
	if q.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, q.Limit)
	}

	var rows []eventRow
	if err := r.db.Select(&rows, sqlQuery, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	events := make([]*models.EpistemicEvent, 0, len(rows))
	for _, row := range rows {
		ev := &models.EpistemicEvent{
			ID:        row.ID,
			Type:      models.EventType(row.EventType),
			SessionID: row.SessionID,
			Timestamp: time.UnixMilli(int64(row.Timestamp * 1000)),
		}
		if row.CascadeID != nil {
			ev.CascadeID = *row.CascadeID
		}
		if row.Domain != nil {
			ev.Domain = *row.Domain
		}
		if row.DataJSON != nil {
			var data map[string]any
			if err := json.Unmarshal([]byte(*row.DataJSON), &data); err == nil {
				ev.Data = data
			}
		}
		events = append(events, ev)
	}
	return events, nil
}
