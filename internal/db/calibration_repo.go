package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/empirica/kernel/internal/models"
)

// CalibrationRepository persists the Grounded Calibration Track's beliefs,
// evidence, trajectory points and verification runs (spec.md §4.7/§6.1).
type CalibrationRepository struct {
	db *DB
}

// NewCalibrationRepository creates a new calibration repository.
func NewCalibrationRepository(db *DB) *CalibrationRepository {
	return &CalibrationRepository{db: db}
}

type groundedBeliefRow struct {
	ID                    string   `db:"id"`
	SessionID             string   `db:"session_id"`
	AIID                  string   `db:"ai_id"`
	VectorName            string   `db:"vector_name"`
	Mean                  float64  `db:"mean"`
	Variance              float64  `db:"variance"`
	EvidenceCount         int      `db:"evidence_count"`
	LastObservation       *float64 `db:"last_observation"`
	LastObservationSource *string  `db:"last_observation_source"`
	SelfReferentialMean   *float64 `db:"self_referential_mean"`
	Divergence            *float64 `db:"divergence"`
	Phase                 string   `db:"phase"`
	Grounded              bool     `db:"grounded"`
	UpdatedAt             time.Time `db:"updated_at"`
}

// UpsertBelief inserts or replaces a GroundedBelief keyed by its ID.
func (r *CalibrationRepository) UpsertBelief(b *models.GroundedBelief) error {
	query := `
		INSERT INTO grounded_beliefs (
			id, session_id, ai_id, vector_name, mean, variance, evidence_count,
			last_observation, last_observation_source, self_referential_mean,
			divergence, phase, grounded, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mean = excluded.mean,
			variance = excluded.variance,
			evidence_count = excluded.evidence_count,
			last_observation = excluded.last_observation,
			last_observation_source = excluded.last_observation_source,
			self_referential_mean = excluded.self_referential_mean,
			divergence = excluded.divergence,
			updated_at = excluded.updated_at
	`
	_, err := r.db.Exec(query,
		b.ID, b.SessionID, b.AIID, string(b.Vector), b.Mean, b.Variance, b.EvidenceCount,
		b.LastObservation, nullIfEmpty(b.LastObservationSource), b.SelfReferentialMean,
		b.Divergence, b.Phase, b.Grounded, b.UpdatedAt,
	)
	return err
}

// GetBelief retrieves a belief by (session, ai, vector, phase).
func (r *CalibrationRepository) GetBelief(sessionID, aiID string, vector models.VectorName, phase string) (*models.GroundedBelief, error) {
	var row groundedBeliefRow
	query := `SELECT * FROM grounded_beliefs WHERE session_id = ? AND ai_id = ? AND vector_name = ? AND phase = ? ORDER BY updated_at DESC LIMIT 1`
	err := r.db.Get(&row, query, sessionID, aiID, string(vector), phase)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToBelief(&row), nil
}

// ListBeliefsForSession retrieves all beliefs for a session.
func (r *CalibrationRepository) ListBeliefsForSession(sessionID string) ([]*models.GroundedBelief, error) {
	var rows []groundedBeliefRow
	query := `SELECT * FROM grounded_beliefs WHERE session_id = ? ORDER BY updated_at DESC`
	if err := r.db.Select(&rows, query, sessionID); err != nil {
		return nil, err
	}
	out := make([]*models.GroundedBelief, 0, len(rows))
	for i := range rows {
		out = append(out, rowToBelief(&rows[i]))
	}
	return out, nil
}

func rowToBelief(row *groundedBeliefRow) *models.GroundedBelief {
	b := &models.GroundedBelief{
		ID: row.ID, SessionID: row.SessionID, AIID: row.AIID,
		Vector: models.VectorName(row.VectorName), Mean: row.Mean, Variance: row.Variance,
		EvidenceCount: row.EvidenceCount, LastObservation: row.LastObservation,
		SelfReferentialMean: row.SelfReferentialMean, Divergence: row.Divergence,
		Phase: row.Phase, Grounded: row.Grounded, UpdatedAt: row.UpdatedAt,
	}
	if row.LastObservationSource != nil {
		b.LastObservationSource = *row.LastObservationSource
	}
	return b
}

// CreateEvidence persists one EvidenceItem feeding a belief update.
func (r *CalibrationRepository) CreateEvidence(e *models.EvidenceItem) error {
	supports, err := json.Marshal(e.SupportsVectors)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO verification_evidence (
			id, session_id, belief_id, source, metric_name, normalized_value,
			raw_value, quality, supports_vectors_json, phase, metadata_json, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		e.ID, e.SessionID, e.BeliefID, e.Source, e.MetricName, e.NormalizedValue,
		e.RawValue, float64(e.Quality), string(supports), e.Phase, string(meta), e.RecordedAt,
	)
	return err
}

// CreateTrajectoryPoint persists one calibration trajectory sample.
func (r *CalibrationRepository) CreateTrajectoryPoint(p *models.CalibrationTrajectoryPoint) error {
	query := `
		INSERT INTO calibration_trajectory (
			point_id, session_id, ai_id, vector_name, self_assessed, grounded, gap,
			domain, goal_id, phase, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		p.PointID, p.SessionID, p.AIID, string(p.Vector), p.SelfAssessed, p.Grounded, p.Gap,
		nullIfEmpty(&p.Domain), nullIfEmpty(&p.GoalID), p.Phase, p.Timestamp,
	)
	return err
}

type trajectoryRow struct {
	PointID      string    `db:"point_id"`
	SessionID    string    `db:"session_id"`
	AIID         string    `db:"ai_id"`
	VectorName   string    `db:"vector_name"`
	SelfAssessed float64   `db:"self_assessed"`
	Grounded     *float64  `db:"grounded"`
	Gap          *float64  `db:"gap"`
	Domain       *string   `db:"domain"`
	GoalID       *string   `db:"goal_id"`
	Phase        string    `db:"phase"`
	Timestamp    time.Time `db:"timestamp"`
}

// ListTrajectory retrieves the most recent lookback points for (ai, vector),
// oldest first, for trend-direction regression (spec.md §4.7).
func (r *CalibrationRepository) ListTrajectory(aiID string, vector models.VectorName, lookback int) ([]*models.CalibrationTrajectoryPoint, error) {
	var rows []trajectoryRow
	query := `SELECT * FROM calibration_trajectory WHERE ai_id = ? AND vector_name = ? ORDER BY timestamp DESC LIMIT ?`
	if err := r.db.Select(&rows, query, aiID, string(vector), lookback); err != nil {
		return nil, err
	}
	out := make([]*models.CalibrationTrajectoryPoint, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		p := &models.CalibrationTrajectoryPoint{
			PointID: row.PointID, SessionID: row.SessionID, AIID: row.AIID,
			Vector: models.VectorName(row.VectorName), SelfAssessed: row.SelfAssessed,
			Grounded: row.Grounded, Gap: row.Gap, Phase: row.Phase, Timestamp: row.Timestamp,
		}
		if row.Domain != nil {
			p.Domain = *row.Domain
		}
		if row.GoalID != nil {
			p.GoalID = *row.GoalID
		}
		out = append(out, p)
	}
	return out, nil
}

// CreateVerification persists a completed grounded-verification run.
func (r *CalibrationRepository) CreateVerification(v *models.GroundedVerification) error {
	selfJSON, err := json.Marshal(v.SelfAssessedVectors)
	if err != nil {
		return err
	}
	groundedJSON, err := json.Marshal(v.GroundedVectors)
	if err != nil {
		return err
	}
	gapsJSON, err := json.Marshal(v.CalibrationGaps)
	if err != nil {
		return err
	}
	availJSON, err := json.Marshal(v.SourcesAvailable)
	if err != nil {
		return err
	}
	failedJSON, err := json.Marshal(v.SourcesFailed)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO grounded_verifications (
			verification_id, session_id, ai_id, self_assessed_vectors_json,
			grounded_vectors_json, calibration_gaps_json, grounded_coverage,
			overall_calibration_score, evidence_count, sources_available_json,
			sources_failed_json, domain, goal_id, phase, ran_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		v.VerificationID, v.SessionID, v.AIID, string(selfJSON), string(groundedJSON),
		string(gapsJSON), v.GroundedCoverage, v.OverallCalibrationScore, v.EvidenceCount,
		string(availJSON), string(failedJSON), nullIfEmpty(&v.Domain), nullIfEmpty(&v.GoalID),
		v.Phase, v.RanAt,
	)
	return err
}

func nullIfEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
