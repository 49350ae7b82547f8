package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/empirica/kernel/internal/models"
)

// CBMStateRepository persists the Context Budget Manager's per-session
// inventory, following context_budget.py's persist_state: one row per
// session, the item inventory and thresholds denormalized as JSON blobs
// (spec.md §6.1).
type CBMStateRepository struct {
	db *DB
}

// NewCBMStateRepository creates a new CBM state repository.
func NewCBMStateRepository(db *DB) *CBMStateRepository {
	return &CBMStateRepository{db: db}
}

type cbmStateRow struct {
	SessionID      string    `db:"session_id"`
	InventoryJSON  string    `db:"inventory_json"`
	ThresholdsJSON string    `db:"thresholds_json"`
	PageFaults     int       `db:"page_faults"`
	Evictions      int       `db:"evictions"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// CBMState is the in-memory shape of a persisted CBM snapshot.
type CBMState struct {
	SessionID   string
	Inventory   []*models.ContextItem
	Thresholds  models.BudgetThresholds
	PageFaults  int
	Evictions   int
}

// Save upserts the session's CBM state, following the teacher's
// INSERT-OR-REPLACE idiom for single-row-per-key tables.
func (r *CBMStateRepository) Save(state *CBMState) error {
	invJSON, err := json.Marshal(state.Inventory)
	if err != nil {
		return err
	}
	thrJSON, err := json.Marshal(state.Thresholds)
	if err != nil {
		return err
	}
	now := time.Now()
	query := `
		INSERT INTO context_budget_state (
			session_id, inventory_json, thresholds_json, page_faults, evictions, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			inventory_json = excluded.inventory_json,
			thresholds_json = excluded.thresholds_json,
			page_faults = excluded.page_faults,
			evictions = excluded.evictions,
			updated_at = excluded.updated_at
	`
	_, err = r.db.Exec(query, state.SessionID, string(invJSON), string(thrJSON), state.PageFaults, state.Evictions, now, now)
	return err
}

// Load retrieves a session's persisted CBM state, returning (nil, nil) if
// none exists yet (teacher's sql.ErrNoRows convention).
func (r *CBMStateRepository) Load(sessionID string) (*CBMState, error) {
	var row cbmStateRow
	err := r.db.Get(&row, `SELECT * FROM context_budget_state WHERE session_id = ?`, sessionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var inventory []*models.ContextItem
	if err := json.Unmarshal([]byte(row.InventoryJSON), &inventory); err != nil {
		return nil, err
	}
	var thresholds models.BudgetThresholds
	if err := json.Unmarshal([]byte(row.ThresholdsJSON), &thresholds); err != nil {
		return nil, err
	}

	return &CBMState{
		SessionID:  row.SessionID,
		Inventory:  inventory,
		Thresholds: thresholds,
		PageFaults: row.PageFaults,
		Evictions:  row.Evictions,
	}, nil
}
