package db

import (
	"database/sql"

	"github.com/empirica/kernel/internal/models"
)

// TrustRepository persists graduated-sentinel trust assessments, append-only
// so the Dashboard can chart trend over time (spec.md §4.11/§11/§6.1).
type TrustRepository struct {
	db *DB
}

// NewTrustRepository creates a new trust repository.
func NewTrustRepository(db *DB) *TrustRepository {
	return &TrustRepository{db: db}
}

// Create appends a new TrustAssessment row.
func (r *TrustRepository) Create(t *models.TrustAssessment) error {
	query := `
		INSERT INTO trust_assessments (
			id, ai_id, score, tier, grounded_coverage, trajectory_direction,
			check_proceed_ratio, mistake_rate, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		t.ID, t.AIID, t.Score, string(t.Tier), t.GroundedCoverage, t.TrajectoryDirection,
		t.CheckProceedRatio, t.MistakeRate, t.ComputedAt,
	)
	return err
}

type trustAssessmentRow struct {
	ID                  string  `db:"id"`
	AIID                string  `db:"ai_id"`
	Score               float64 `db:"score"`
	Tier                string  `db:"tier"`
	GroundedCoverage    float64 `db:"grounded_coverage"`
	TrajectoryDirection float64 `db:"trajectory_direction"`
	CheckProceedRatio   float64 `db:"check_proceed_ratio"`
	MistakeRate         float64 `db:"mistake_rate"`
	ComputedAt          sql.NullTime `db:"computed_at"`
}

func rowToTrustAssessment(row *trustAssessmentRow) *models.TrustAssessment {
	t := &models.TrustAssessment{
		ID:                  row.ID,
		AIID:                row.AIID,
		Score:               row.Score,
		Tier:                models.AutonomyTier(row.Tier),
		GroundedCoverage:    row.GroundedCoverage,
		TrajectoryDirection: row.TrajectoryDirection,
		CheckProceedRatio:   row.CheckProceedRatio,
		MistakeRate:         row.MistakeRate,
	}
	if row.ComputedAt.Valid {
		t.ComputedAt = row.ComputedAt.Time
	}
	return t
}

// Latest retrieves the most recent assessment for an AI, or nil if none
// exists yet.
func (r *TrustRepository) Latest(aiID string) (*models.TrustAssessment, error) {
	var row trustAssessmentRow
	query := `SELECT * FROM trust_assessments WHERE ai_id = ? ORDER BY computed_at DESC LIMIT 1`
	err := r.db.Get(&row, query, aiID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToTrustAssessment(&row), nil
}

// History retrieves the most recent limit assessments for an AI, oldest
// first, for Dashboard trend charting (spec.md §10).
func (r *TrustRepository) History(aiID string, limit int) ([]*models.TrustAssessment, error) {
	var rows []trustAssessmentRow
	query := `SELECT * FROM trust_assessments WHERE ai_id = ? ORDER BY computed_at DESC LIMIT ?`
	if err := r.db.Select(&rows, query, aiID, limit); err != nil {
		return nil, err
	}
	out := make([]*models.TrustAssessment, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, rowToTrustAssessment(&rows[i]))
	}
	return out, nil
}
