package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/empirica/kernel/internal/models"
)

// AttentionBudgetRepository persists AttentionBudget allocations
// (spec.md §4.3/§6.1). Allocations are stored as a denormalized JSON blob,
// following the teacher's *_data JSON-blob-in-column convention.
type AttentionBudgetRepository struct {
	db *DB
}

// NewAttentionBudgetRepository creates a new attention budget repository.
func NewAttentionBudgetRepository(db *DB) *AttentionBudgetRepository {
	return &AttentionBudgetRepository{db: db}
}

type attentionBudgetRow struct {
	ID              string  `db:"id"`
	SessionID       string  `db:"session_id"`
	TotalBudget     int     `db:"total_budget"`
	Allocated       int     `db:"allocated"`
	Remaining       int     `db:"remaining"`
	Strategy        string  `db:"strategy"`
	AllocationsJSON string  `db:"allocations_json"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// Create persists a new attention budget.
func (r *AttentionBudgetRepository) Create(b *models.AttentionBudget) error {
	allocJSON, err := json.Marshal(b.Allocations)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO attention_budgets (
			id, session_id, total_budget, allocated, remaining, strategy,
			allocations_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		b.ID, b.SessionID, b.TotalBudget, b.Allocated, b.Remaining, b.Strategy,
		string(allocJSON), b.CreatedAt, b.UpdatedAt,
	)
	return err
}

// Get retrieves an attention budget by ID.
func (r *AttentionBudgetRepository) Get(id string) (*models.AttentionBudget, error) {
	var row attentionBudgetRow
	err := r.db.Get(&row, `SELECT * FROM attention_budgets WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToBudget(&row)
}

// GetLatestForSession retrieves the most recently created budget for a session.
func (r *AttentionBudgetRepository) GetLatestForSession(sessionID string) (*models.AttentionBudget, error) {
	var row attentionBudgetRow
	query := `SELECT * FROM attention_budgets WHERE session_id = ? ORDER BY created_at DESC LIMIT 1`
	err := r.db.Get(&row, query, sessionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToBudget(&row)
}

// Update persists the mutable fields of a budget (allocated/remaining) after
// a Consume call.
func (r *AttentionBudgetRepository) Update(b *models.AttentionBudget) error {
	query := `UPDATE attention_budgets SET allocated = ?, remaining = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.Exec(query, b.Allocated, b.Remaining, b.UpdatedAt, b.ID)
	return err
}

func rowToBudget(row *attentionBudgetRow) (*models.AttentionBudget, error) {
	var allocations []models.DomainAllocation
	if err := json.Unmarshal([]byte(row.AllocationsJSON), &allocations); err != nil {
		return nil, err
	}
	return &models.AttentionBudget{
		ID: row.ID, SessionID: row.SessionID, TotalBudget: row.TotalBudget,
		Allocated: row.Allocated, Remaining: row.Remaining, Strategy: row.Strategy,
		Allocations: allocations, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}, nil
}
