package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/empirica/kernel/internal/models"
)

// RollupRepository persists the Rollup Gate's per-finding accept/reject log
// (spec.md §4.5/§6.1, table rollup_logs).
type RollupRepository struct {
	db *DB
}

// NewRollupRepository creates a new rollup repository.
func NewRollupRepository(db *DB) *RollupRepository {
	return &RollupRepository{db: db}
}

// LogFinding records one ScoredFinding's gate decision.
func (r *RollupRepository) LogFinding(sessionID, cascadeID string, f *models.ScoredFinding) error {
	var rejectReason *string
	if f.RejectReason != "" {
		rejectReason = &f.RejectReason
	}
	var cascade *string
	if cascadeID != "" {
		cascade = &cascadeID
	}
	query := `
		INSERT INTO rollup_logs (
			id, session_id, cascade_id, finding_hash, agent_name, domain,
			score, accepted, reject_reason, created_timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		uuid.New().String(), sessionID, cascade, f.FindingHash, f.AgentName, f.Domain,
		f.Score, f.Accepted, rejectReason, float64(time.Now().Unix()),
	)
	return err
}

// LogResult persists every accepted and rejected finding in a RollupResult.
func (r *RollupRepository) LogResult(sessionID, cascadeID string, result *models.RollupResult) error {
	for _, f := range result.Accepted {
		if err := r.LogFinding(sessionID, cascadeID, f); err != nil {
			return err
		}
	}
	for _, f := range result.Rejected {
		if err := r.LogFinding(sessionID, cascadeID, f); err != nil {
			return err
		}
	}
	return nil
}

type rollupLogRow struct {
	ID                string   `db:"id"`
	SessionID         string   `db:"session_id"`
	CascadeID         *string  `db:"cascade_id"`
	FindingHash       string   `db:"finding_hash"`
	AgentName         *string  `db:"agent_name"`
	Domain            *string  `db:"domain"`
	Score             float64  `db:"score"`
	Accepted          bool     `db:"accepted"`
	RejectReason      *string  `db:"reject_reason"`
	CreatedTimestamp  float64  `db:"created_timestamp"`
}

// RecentHashes returns the finding_hash of every finding logged for a session
// within the lookback window, for duplicate-hash dedup (spec.md §4.5).
func (r *RollupRepository) RecentHashes(sessionID string, since time.Time) ([]string, error) {
	var rows []rollupLogRow
	query := `SELECT * FROM rollup_logs WHERE session_id = ? AND created_timestamp >= ? ORDER BY created_timestamp DESC`
	if err := r.db.Select(&rows, query, sessionID, float64(since.Unix())); err != nil {
		return nil, err
	}
	hashes := make([]string, 0, len(rows))
	for _, row := range rows {
		hashes = append(hashes, row.FindingHash)
	}
	return hashes, nil
}

// ListForSession returns every accepted finding logged for a session, most
// recent first, used to feed the Rollup Gate's semantic-novelty pass.
func (r *RollupRepository) ListForSession(sessionID string) ([]*models.ScoredFinding, error) {
	var rows []rollupLogRow
	query := `SELECT * FROM rollup_logs WHERE session_id = ? AND accepted = 1 ORDER BY created_timestamp DESC`
	if err := r.db.Select(&rows, query, sessionID); err != nil {
		return nil, err
	}
	out := make([]*models.ScoredFinding, 0, len(rows))
	for _, row := range rows {
		f := &models.ScoredFinding{
			Score:       row.Score,
			FindingHash: row.FindingHash,
			Accepted:    row.Accepted,
		}
		if row.AgentName != nil {
			f.AgentName = *row.AgentName
		}
		if row.Domain != nil {
			f.Domain = *row.Domain
		}
		out = append(out, f)
	}
	return out, nil
}
